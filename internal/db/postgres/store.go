package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ctshub/internal/domain/artifact"
	"ctshub/internal/domain/search"
)

// uniqueViolation PostgreSQL 唯一约束冲突错误码。
const uniqueViolation = "23505"

// Store search.Store 的 PostgreSQL 实现。
// 表名由 CTS ID 前缀决定，多个 CTS 实例可共用同一个库。
// 所有值都走参数化查询，表名经 QuoteIdentifier 处理。
type Store struct {
	db      *sql.DB
	ctsID   string
	actives string // <cts_id>_active_searches
	results string // <cts_id>_results
}

// NewStore 创建 PostgreSQL 存储。
func NewStore(db *sql.DB, ctsID string) *Store {
	return &Store{
		db:      db,
		ctsID:   ctsID,
		actives: pq.QuoteIdentifier(ctsID + "_active_searches"),
		results: pq.QuoteIdentifier(ctsID + "_results"),
	}
}

// EnsureTables 确保两张表存在。active searches 表对
// (artifact_type, artifact_value) 加唯一约束，把去重的
// check-then-act 竞态折叠成注册冲突。
func (s *Store) EnsureTables(ctx context.Context) error {
	ddl := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		search_id      UUID PRIMARY KEY,
		artifact_type  VARCHAR(64) NOT NULL,
		artifact_value TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (artifact_type, artifact_value)
	);

	CREATE TABLE IF NOT EXISTS %s (
		search_id      UUID PRIMARY KEY,
		artifact_type  VARCHAR(64) NOT NULL,
		artifact_value TEXT NOT NULL,
		hit            JSONB NOT NULL,
		found_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS %s ON %s (artifact_type, artifact_value);
	`, s.actives, s.results, pq.QuoteIdentifier("idx_"+s.ctsID+"_results_artifact"), s.results)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return classify(err)
	}
	return nil
}

// FindResultsByFingerprint 按 fingerprint 查结果，found_at 升序。
func (s *Store) FindResultsByFingerprint(ctx context.Context, fp artifact.Fingerprint) ([]*search.ResultRecord, error) {
	query := fmt.Sprintf(
		`SELECT search_id, artifact_type, artifact_value, hit, found_at
		 FROM %s WHERE artifact_type = $1 AND artifact_value = $2
		 ORDER BY found_at ASC`, s.results)

	rows, err := s.db.QueryContext(ctx, query, fp.Type, fp.Value)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var records []*search.ResultRecord
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, classify(err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return records, nil
}

// FindResultBySearchID 按 search_id 查结果，未命中返回 (nil, nil)。
func (s *Store) FindResultBySearchID(ctx context.Context, searchID string) (*search.ResultRecord, error) {
	query := fmt.Sprintf(
		`SELECT search_id, artifact_type, artifact_value, hit, found_at
		 FROM %s WHERE search_id = $1`, s.results)

	rec, err := scanResult(s.db.QueryRowContext(ctx, query, searchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return rec, nil
}

// FindActiveSearchesByFingerprint 按 fingerprint 查 marker，created_at 升序。
func (s *Store) FindActiveSearchesByFingerprint(ctx context.Context, fp artifact.Fingerprint) ([]*search.ActiveSearchRecord, error) {
	query := fmt.Sprintf(
		`SELECT search_id, artifact_type, artifact_value, created_at
		 FROM %s WHERE artifact_type = $1 AND artifact_value = $2
		 ORDER BY created_at ASC`, s.actives)

	rows, err := s.db.QueryContext(ctx, query, fp.Type, fp.Value)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var records []*search.ActiveSearchRecord
	for rows.Next() {
		rec, err := scanActiveSearch(rows)
		if err != nil {
			return nil, classify(err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return records, nil
}

// FindActiveSearchByID 按 search_id 查 marker，未命中返回 (nil, nil)。
func (s *Store) FindActiveSearchByID(ctx context.Context, searchID string) (*search.ActiveSearchRecord, error) {
	query := fmt.Sprintf(
		`SELECT search_id, artifact_type, artifact_value, created_at
		 FROM %s WHERE search_id = $1`, s.actives)

	rec, err := scanActiveSearch(s.db.QueryRowContext(ctx, query, searchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return rec, nil
}

// InsertActiveSearch 创建 marker。唯一约束冲突映射为 ErrDuplicateActiveSearch。
func (s *Store) InsertActiveSearch(ctx context.Context, fp artifact.Fingerprint) (string, error) {
	searchID := uuid.New().String()
	query := fmt.Sprintf(
		`INSERT INTO %s (search_id, artifact_type, artifact_value, created_at)
		 VALUES ($1, $2, $3, NOW())`, s.actives)

	if _, err := s.db.ExecContext(ctx, query, searchID, fp.Type, fp.Value); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return "", fmt.Errorf("%w: %s", search.ErrDuplicateActiveSearch, fp.String())
		}
		return "", classify(err)
	}
	return searchID, nil
}

// RemoveActiveSearch 删除 marker，校验恰好影响一行。
func (s *Store) RemoveActiveSearch(ctx context.Context, searchID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE search_id = $1`, s.actives)

	res, err := s.db.ExecContext(ctx, query, searchID)
	if err != nil {
		return classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	switch {
	case affected == 0:
		return fmt.Errorf("%w: %s", search.ErrActiveSearchNotFound, searchID)
	case affected > 1:
		return fmt.Errorf("%w: search_id %s affected %d rows", search.ErrMultipleRecordsAffected, searchID, affected)
	}
	return nil
}

// InsertResult 写入终态结果。
func (s *Store) InsertResult(ctx context.Context, rec *search.ResultRecord) error {
	if rec.FoundAt.IsZero() {
		rec.FoundAt = time.Now()
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (search_id, artifact_type, artifact_value, hit, found_at)
		 VALUES ($1, $2, $3, $4, $5)`, s.results)

	hit := rec.Hit
	if len(hit) == 0 {
		hit = json.RawMessage("null")
	}

	if _, err := s.db.ExecContext(ctx, query,
		rec.SearchID, rec.Fingerprint.Type, rec.Fingerprint.Value, []byte(hit), rec.FoundAt,
	); err != nil {
		return classify(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*search.ResultRecord, error) {
	var (
		rec search.ResultRecord
		hit []byte
	)
	if err := row.Scan(&rec.SearchID, &rec.Fingerprint.Type, &rec.Fingerprint.Value, &hit, &rec.FoundAt); err != nil {
		return nil, err
	}
	rec.Hit = json.RawMessage(hit)
	return &rec, nil
}

func scanActiveSearch(row rowScanner) (*search.ActiveSearchRecord, error) {
	var rec search.ActiveSearchRecord
	if err := row.Scan(&rec.SearchID, &rec.Fingerprint.Type, &rec.Fingerprint.Value, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// classify 把驱动错误映射到端口错误分类：
// 数据库返回的错误算写入失败，连接层错误算存储不可达。
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w: %v", search.ErrPersistenceWrite, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return fmt.Errorf("%w: %v", search.ErrPersistenceUnavailable, err)
}
