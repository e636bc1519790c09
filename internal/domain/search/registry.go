package search

import (
	"context"
	"fmt"

	"ctshub/internal/domain/artifact"
)

// Query 按 search_id 或按 fingerprint 查询，必须且只能提供其一。
type Query struct {
	SearchID    string
	Fingerprint *artifact.Fingerprint
}

func (q Query) validate() error {
	hasID := q.SearchID != ""
	hasFP := q.Fingerprint != nil
	if hasID == hasFP {
		return ErrInvalidQuery
	}
	if hasFP && (q.Fingerprint.Type == "" || q.Fingerprint.Value == "") {
		return fmt.Errorf("%w: fingerprint fields must be non-empty", ErrInvalidQuery)
	}
	return nil
}

// ActiveSearchRegistry active search marker 的类型化访问层。
// 只做输入校验，不含其他逻辑。
type ActiveSearchRegistry struct {
	store Store
}

// NewActiveSearchRegistry 创建 registry。
func NewActiveSearchRegistry(store Store) *ActiveSearchRegistry {
	return &ActiveSearchRegistry{store: store}
}

// Find 查找 active search marker。按 search_id 查询时返回 0 或 1 条。
func (r *ActiveSearchRegistry) Find(ctx context.Context, q Query) ([]*ActiveSearchRecord, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if q.SearchID != "" {
		rec, err := r.store.FindActiveSearchByID(ctx, q.SearchID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
		return []*ActiveSearchRecord{rec}, nil
	}
	return r.store.FindActiveSearchesByFingerprint(ctx, *q.Fingerprint)
}

// Register 为 fingerprint 创建 marker，返回生成的 search_id。
func (r *ActiveSearchRegistry) Register(ctx context.Context, fp artifact.Fingerprint) (string, error) {
	if fp.Type == "" || fp.Value == "" {
		return "", artifact.ErrEmptyField
	}
	return r.store.InsertActiveSearch(ctx, fp)
}

// Remove 删除 marker。零条匹配返回 ErrActiveSearchNotFound。
func (r *ActiveSearchRegistry) Remove(ctx context.Context, searchID string) error {
	if searchID == "" {
		return fmt.Errorf("%w: search_id must be non-empty", ErrInvalidQuery)
	}
	return r.store.RemoveActiveSearch(ctx, searchID)
}

// ResultStore 结果记录的类型化访问层。
type ResultStore struct {
	store Store
}

// NewResultStore 创建 result store。
func NewResultStore(store Store) *ResultStore {
	return &ResultStore{store: store}
}

// Find 查找结果记录。按 search_id 查询时返回 0 或 1 条。
func (s *ResultStore) Find(ctx context.Context, q Query) ([]*ResultRecord, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if q.SearchID != "" {
		rec, err := s.store.FindResultBySearchID(ctx, q.SearchID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
		return []*ResultRecord{rec}, nil
	}
	return s.store.FindResultsByFingerprint(ctx, *q.Fingerprint)
}

// Record 写入终态结果记录。
func (s *ResultStore) Record(ctx context.Context, rec *ResultRecord) error {
	if rec.SearchID == "" {
		return fmt.Errorf("%w: search_id must be non-empty", ErrInvalidQuery)
	}
	if rec.Fingerprint.Type == "" || rec.Fingerprint.Value == "" {
		return artifact.ErrEmptyField
	}
	return s.store.InsertResult(ctx, rec)
}
