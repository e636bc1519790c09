package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ctshub/internal/domain/artifact"
)

// TestQueryValidation 查询必须且只能带 search_id 或 fingerprint 之一
func TestQueryValidation(t *testing.T) {
	store := newFakeStore()
	registry := NewActiveSearchRegistry(store)
	results := NewResultStore(store)
	fp := testFingerprint()

	tests := []struct {
		name string
		q    Query
	}{
		{name: "neither key", q: Query{}},
		{name: "both keys", q: Query{SearchID: "s-1", Fingerprint: &fp}},
		{name: "empty fingerprint fields", q: Query{Fingerprint: &artifact.Fingerprint{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := registry.Find(context.Background(), tt.q); !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("registry.Find: expected ErrInvalidQuery, got %v", err)
			}
			if _, err := results.Find(context.Background(), tt.q); !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("results.Find: expected ErrInvalidQuery, got %v", err)
			}
		})
	}
}

// TestRegistryFindBySearchID 按 id 查询返回 0 或 1 条
func TestRegistryFindBySearchID(t *testing.T) {
	store := newFakeStore()
	registry := NewActiveSearchRegistry(store)
	fp := testFingerprint()

	id, err := registry.Register(context.Background(), fp)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	records, err := registry.Find(context.Background(), Query{SearchID: id})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(records) != 1 || records[0].SearchID != id {
		t.Fatalf("expected one record with id %s, got %v", id, records)
	}

	records, err = registry.Find(context.Background(), Query{SearchID: "missing"})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records for unknown id, got %v", records)
	}
}

// TestRegisterValidation fingerprint 字段必须非空
func TestRegisterValidation(t *testing.T) {
	registry := NewActiveSearchRegistry(newFakeStore())

	if _, err := registry.Register(context.Background(), artifact.Fingerprint{Type: "uri"}); !errors.Is(err, artifact.ErrEmptyField) {
		t.Errorf("expected ErrEmptyField for missing value, got %v", err)
	}
	if _, err := registry.Register(context.Background(), artifact.Fingerprint{Value: "x"}); !errors.Is(err, artifact.ErrEmptyField) {
		t.Errorf("expected ErrEmptyField for missing type, got %v", err)
	}
}

// TestRemoveMissingActiveSearch 删除零条匹配的 marker 报 ErrActiveSearchNotFound
func TestRemoveMissingActiveSearch(t *testing.T) {
	registry := NewActiveSearchRegistry(newFakeStore())

	if err := registry.Remove(context.Background(), "no-such-id"); !errors.Is(err, ErrActiveSearchNotFound) {
		t.Errorf("expected ErrActiveSearchNotFound, got %v", err)
	}
	if err := registry.Remove(context.Background(), ""); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery for empty id, got %v", err)
	}
}

// TestResultRecordValidation 结果写入校验
func TestResultRecordValidation(t *testing.T) {
	results := NewResultStore(newFakeStore())
	fp := testFingerprint()

	err := results.Record(context.Background(), &ResultRecord{Fingerprint: fp, Hit: json.RawMessage(`{}`)})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery for missing search_id, got %v", err)
	}

	err = results.Record(context.Background(), &ResultRecord{SearchID: "s-1", Hit: json.RawMessage(`{}`)})
	if !errors.Is(err, artifact.ErrEmptyField) {
		t.Errorf("expected ErrEmptyField for empty fingerprint, got %v", err)
	}
}
