package search

import (
	"context"
	"encoding/json"
	"time"

	"ctshub/internal/domain/artifact"
)

// ActiveSearchRecord 正在进行中的调查的持久化 marker。
// 调查启动时创建，完成时删除（无论成功失败），没有其他变更路径。
type ActiveSearchRecord struct {
	SearchID    string               `json:"search_id"`
	Fingerprint artifact.Fingerprint `json:"fingerprint"`
	CreatedAt   time.Time            `json:"created_at"`
}

// ResultRecord 一次已完成调查的终态记录。每个 search_id 只创建一次，
// 之后不再更新或删除（过期清理属于外部职责）。
type ResultRecord struct {
	SearchID    string               `json:"search_id"`
	Fingerprint artifact.Fingerprint `json:"fingerprint"`
	Hit         json.RawMessage      `json:"hit"`
	FoundAt     time.Time            `json:"found_at"`
}

// Store 持久化端口。两个后端实现（PostgreSQL / MongoDB）语义必须一致，
// 上层只依赖这个接口。
//
// 查询方法按 fingerprint 返回的列表按 created_at/found_at 升序排列；
// 按 search_id 查询未命中时返回 (nil, nil)。
type Store interface {
	// FindResultsByFingerprint 查找 fingerprint 对应的全部结果记录。
	FindResultsByFingerprint(ctx context.Context, fp artifact.Fingerprint) ([]*ResultRecord, error)

	// FindResultBySearchID 按 search_id 查找结果记录。
	FindResultBySearchID(ctx context.Context, searchID string) (*ResultRecord, error)

	// FindActiveSearchesByFingerprint 查找 fingerprint 对应的全部 active search marker。
	FindActiveSearchesByFingerprint(ctx context.Context, fp artifact.Fingerprint) ([]*ActiveSearchRecord, error)

	// FindActiveSearchByID 按 search_id 查找 active search marker。
	FindActiveSearchByID(ctx context.Context, searchID string) (*ActiveSearchRecord, error)

	// InsertActiveSearch 为 fingerprint 创建 marker，返回生成的 search_id。
	// 同一 fingerprint 已存在 marker 时返回 ErrDuplicateActiveSearch（存储层唯一约束）。
	InsertActiveSearch(ctx context.Context, fp artifact.Fingerprint) (string, error)

	// RemoveActiveSearch 删除 marker。非幂等：零条匹配返回 ErrActiveSearchNotFound，
	// 多条匹配返回 ErrMultipleRecordsAffected。
	RemoveActiveSearch(ctx context.Context, searchID string) error

	// InsertResult 写入终态结果。
	InsertResult(ctx context.Context, rec *ResultRecord) error
}

// ResultCache 可选的结果读缓存，按 fingerprint 命中。
type ResultCache interface {
	Get(ctx context.Context, fp artifact.Fingerprint) (json.RawMessage, bool)
	Set(ctx context.Context, fp artifact.Fingerprint, hit json.RawMessage)
}
