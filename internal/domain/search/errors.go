package search

import "errors"

var (
	// ErrPersistenceUnavailable 持久化存储不可达，当前请求直接失败
	ErrPersistenceUnavailable = errors.New("persistence store unavailable")

	// ErrPersistenceWrite 持久化写入失败（约束冲突等）
	ErrPersistenceWrite = errors.New("persistence write failed")

	// ErrActiveSearchNotFound 删除 active search 时没有匹配记录
	ErrActiveSearchNotFound = errors.New("active search not found")

	// ErrMultipleRecordsAffected 删除 active search 时影响了多条记录，
	// 说明上游 key 唯一性被破坏
	ErrMultipleRecordsAffected = errors.New("multiple active search records affected")

	// ErrInvalidQuery 查询必须且只能提供 search_id 或 fingerprint 之一
	ErrInvalidQuery = errors.New("exactly one of search_id or fingerprint is required")

	// ErrDuplicateActiveSearch 同一 fingerprint 已存在 active search marker，
	// 由存储层唯一约束触发
	ErrDuplicateActiveSearch = errors.New("active search already registered for fingerprint")

	// ErrUnknownSearchID search_id 既不在结果表也不在 active searches 中
	ErrUnknownSearchID = errors.New("unknown search id")
)
