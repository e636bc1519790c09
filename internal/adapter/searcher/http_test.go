package searcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ctshub/internal/domain/artifact"
	"ctshub/internal/domain/search"
)

// TestSearchJSON 无文件时以 JSON 调用上游并透传响应
func TestSearchJSON(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %q", ct)
		}
		var fp artifact.Fingerprint
		if err := json.NewDecoder(r.Body).Decode(&fp); err != nil {
			t.Errorf("decode upstream body: %v", err)
		}
		if fp.Type != "uri" || fp.Value != "https://example.com" {
			t.Errorf("unexpected fingerprint: %+v", fp)
		}
		w.Write([]byte(`{"score":5}`))
	}))
	defer upstream.Close()

	s := New(upstream.URL, 10*time.Second)
	hit, err := s.Search(context.Background(), artifact.Fingerprint{Type: "uri", Value: "https://example.com"}, nil)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if string(hit) != `{"score":5}` {
		t.Errorf("unexpected hit: %s", hit)
	}
}

// TestSearchMultipart 带文件时以 multipart 调用上游
func TestSearchMultipart(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		if err != nil {
			t.Errorf("expected multipart request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		artifactPart, err := reader.NextPart()
		if err != nil {
			t.Errorf("read artifact part: %v", err)
			return
		}
		var fp artifact.Fingerprint
		if err := json.NewDecoder(artifactPart).Decode(&fp); err != nil {
			t.Errorf("decode artifact part: %v", err)
		}
		if fp.Type != "string" || fp.Value != "evil.exe" {
			t.Errorf("unexpected fingerprint: %+v", fp)
		}

		filePart, err := reader.NextPart()
		if err != nil {
			t.Errorf("read file part: %v", err)
			return
		}
		data, _ := io.ReadAll(filePart)
		if string(data) != "malware bytes" {
			t.Errorf("unexpected file contents: %q", data)
		}
		if enc := filePart.Header.Get("Content-Transfer-Encoding"); enc != "binary" {
			t.Errorf("expected encoding binary, got %q", enc)
		}

		w.Write([]byte(`{"verdict":"malicious"}`))
	}))
	defer upstream.Close()

	file, err := search.NewFileResource(t.TempDir(), strings.NewReader("malware bytes"), "binary")
	if err != nil {
		t.Fatalf("stage file: %v", err)
	}
	defer file.Release()

	s := New(upstream.URL, 10*time.Second)
	hit, err := s.Search(context.Background(), artifact.Fingerprint{Type: "string", Value: "evil.exe"}, file)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if string(hit) != `{"verdict":"malicious"}` {
		t.Errorf("unexpected hit: %s", hit)
	}
}

// TestSearchUpstreamError 非 2xx 响应转为错误
func TestSearchUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "searcher out of quota", http.StatusBadGateway)
	}))
	defer upstream.Close()

	s := New(upstream.URL, 10*time.Second)
	_, err := s.Search(context.Background(), artifact.Fingerprint{Type: "ip", Value: "10.0.0.1"}, nil)
	if err == nil {
		t.Fatal("expected error for non-2xx upstream response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status code in error, got %v", err)
	}
}
