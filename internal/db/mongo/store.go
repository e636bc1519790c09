package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ctshub/internal/domain/artifact"
	"ctshub/internal/domain/search"
)

// Store search.Store 的 MongoDB 实现。
// 集合名由 CTS ID 前缀决定，查询只用精确匹配 filter，
// 语义与 PostgreSQL 实现保持一致。
type Store struct {
	actives *mongo.Collection // <cts_id>_active_searches
	results *mongo.Collection // <cts_id>_results
}

// activeSearchDoc active search marker 的文档形态。
type activeSearchDoc struct {
	SearchID      string    `bson:"search_id"`
	ArtifactType  string    `bson:"artifact_type"`
	ArtifactValue string    `bson:"artifact_value"`
	CreatedAt     time.Time `bson:"created_at"`
}

// resultDoc 结果记录的文档形态。hit 以原始 JSON 文本存储，
// 保持 payload 对存储层不透明。
type resultDoc struct {
	SearchID      string    `bson:"search_id"`
	ArtifactType  string    `bson:"artifact_type"`
	ArtifactValue string    `bson:"artifact_value"`
	Hit           string    `bson:"hit"`
	FoundAt       time.Time `bson:"found_at"`
}

// NewStore 创建 MongoDB 存储。
func NewStore(db *mongo.Database, ctsID string) *Store {
	return &Store{
		actives: db.Collection(ctsID + "_active_searches"),
		results: db.Collection(ctsID + "_results"),
	}
}

// EnsureIndexes 确保索引存在。active searches 集合对
// (artifact_type, artifact_value) 加唯一索引，与关系型实现的
// 唯一约束对应；两个集合的 search_id 都加唯一索引。
func (s *Store) EnsureIndexes(ctx context.Context) error {
	fingerprintKeys := bson.D{{Key: "artifact_type", Value: 1}, {Key: "artifact_value", Value: 1}}
	searchIDKeys := bson.D{{Key: "search_id", Value: 1}}

	_, err := s.actives.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: fingerprintKeys, Options: options.Index().SetUnique(true)},
		{Keys: searchIDKeys, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return classify(err)
	}

	_, err = s.results.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: searchIDKeys, Options: options.Index().SetUnique(true)},
		{Keys: fingerprintKeys},
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// FindResultsByFingerprint 按 fingerprint 查结果，found_at 升序。
func (s *Store) FindResultsByFingerprint(ctx context.Context, fp artifact.Fingerprint) ([]*search.ResultRecord, error) {
	cursor, err := s.results.Find(ctx, fingerprintFilter(fp),
		options.Find().SetSort(bson.D{{Key: "found_at", Value: 1}}))
	if err != nil {
		return nil, classify(err)
	}
	defer cursor.Close(ctx)

	var docs []resultDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}

	records := make([]*search.ResultRecord, 0, len(docs))
	for i := range docs {
		records = append(records, docs[i].toRecord())
	}
	return records, nil
}

// FindResultBySearchID 按 search_id 查结果，未命中返回 (nil, nil)。
func (s *Store) FindResultBySearchID(ctx context.Context, searchID string) (*search.ResultRecord, error) {
	var doc resultDoc
	err := s.results.FindOne(ctx, bson.D{{Key: "search_id", Value: searchID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return doc.toRecord(), nil
}

// FindActiveSearchesByFingerprint 按 fingerprint 查 marker，created_at 升序。
func (s *Store) FindActiveSearchesByFingerprint(ctx context.Context, fp artifact.Fingerprint) ([]*search.ActiveSearchRecord, error) {
	cursor, err := s.actives.Find(ctx, fingerprintFilter(fp),
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, classify(err)
	}
	defer cursor.Close(ctx)

	var docs []activeSearchDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}

	records := make([]*search.ActiveSearchRecord, 0, len(docs))
	for i := range docs {
		records = append(records, docs[i].toRecord())
	}
	return records, nil
}

// FindActiveSearchByID 按 search_id 查 marker，未命中返回 (nil, nil)。
func (s *Store) FindActiveSearchByID(ctx context.Context, searchID string) (*search.ActiveSearchRecord, error) {
	var doc activeSearchDoc
	err := s.actives.FindOne(ctx, bson.D{{Key: "search_id", Value: searchID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return doc.toRecord(), nil
}

// InsertActiveSearch 创建 marker。唯一索引冲突映射为 ErrDuplicateActiveSearch。
func (s *Store) InsertActiveSearch(ctx context.Context, fp artifact.Fingerprint) (string, error) {
	doc := activeSearchDoc{
		SearchID:      uuid.New().String(),
		ArtifactType:  fp.Type,
		ArtifactValue: fp.Value,
		CreatedAt:     time.Now(),
	}

	if _, err := s.actives.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("%w: %s", search.ErrDuplicateActiveSearch, fp.String())
		}
		return "", classify(err)
	}
	return doc.SearchID, nil
}

// RemoveActiveSearch 删除 marker，校验恰好删除一条。
func (s *Store) RemoveActiveSearch(ctx context.Context, searchID string) error {
	res, err := s.actives.DeleteMany(ctx, bson.D{{Key: "search_id", Value: searchID}})
	if err != nil {
		return classify(err)
	}
	switch {
	case res.DeletedCount == 0:
		return fmt.Errorf("%w: %s", search.ErrActiveSearchNotFound, searchID)
	case res.DeletedCount > 1:
		return fmt.Errorf("%w: search_id %s deleted %d documents", search.ErrMultipleRecordsAffected, searchID, res.DeletedCount)
	}
	return nil
}

// InsertResult 写入终态结果。
func (s *Store) InsertResult(ctx context.Context, rec *search.ResultRecord) error {
	foundAt := rec.FoundAt
	if foundAt.IsZero() {
		foundAt = time.Now()
	}

	hit := rec.Hit
	if len(hit) == 0 {
		hit = json.RawMessage("null")
	}

	doc := resultDoc{
		SearchID:      rec.SearchID,
		ArtifactType:  rec.Fingerprint.Type,
		ArtifactValue: rec.Fingerprint.Value,
		Hit:           string(hit),
		FoundAt:       foundAt,
	}

	if _, err := s.results.InsertOne(ctx, doc); err != nil {
		return classify(err)
	}
	return nil
}

func (d *activeSearchDoc) toRecord() *search.ActiveSearchRecord {
	return &search.ActiveSearchRecord{
		SearchID:    d.SearchID,
		Fingerprint: artifact.Fingerprint{Type: d.ArtifactType, Value: d.ArtifactValue},
		CreatedAt:   d.CreatedAt,
	}
}

func (d *resultDoc) toRecord() *search.ResultRecord {
	return &search.ResultRecord{
		SearchID:    d.SearchID,
		Fingerprint: artifact.Fingerprint{Type: d.ArtifactType, Value: d.ArtifactValue},
		Hit:         json.RawMessage(d.Hit),
		FoundAt:     d.FoundAt,
	}
}

func fingerprintFilter(fp artifact.Fingerprint) bson.D {
	return bson.D{
		{Key: "artifact_type", Value: fp.Type},
		{Key: "artifact_value", Value: fp.Value},
	}
}

// classify 把驱动错误映射到端口错误分类：
// 写入类错误算写入失败，连接层错误算存储不可达。
func classify(err error) error {
	if mongo.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", search.ErrPersistenceUnavailable, err)
	}
	var we mongo.WriteException
	var bwe mongo.BulkWriteException
	if errors.As(err, &we) || errors.As(err, &bwe) {
		return fmt.Errorf("%w: %v", search.ErrPersistenceWrite, err)
	}
	return fmt.Errorf("%w: %v", search.ErrPersistenceUnavailable, err)
}
