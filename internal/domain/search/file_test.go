package search

import (
	"os"
	"strings"
	"testing"
)

// TestFileResourceRelease 释放即删除，重复释放安全
func TestFileResourceRelease(t *testing.T) {
	file, err := NewFileResource(t.TempDir(), strings.NewReader("file contents"), "binary")
	if err != nil {
		t.Fatalf("create file resource: %v", err)
	}

	data, err := os.ReadFile(file.Path)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if string(data) != "file contents" {
		t.Errorf("unexpected staged contents: %q", data)
	}
	if file.Encoding != "binary" {
		t.Errorf("expected encoding binary, got %q", file.Encoding)
	}

	file.Release()
	if _, err := os.Stat(file.Path); !os.IsNotExist(err) {
		t.Error("expected file to be removed after release")
	}

	// 重复释放不报错
	file.Release()
}

// TestFileResourceNilRelease nil 接收者释放是 no-op
func TestFileResourceNilRelease(t *testing.T) {
	var file *FileResource
	file.Release()
}
