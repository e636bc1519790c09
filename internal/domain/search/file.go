package search

import (
	"fmt"
	"io"
	"os"
	"sync"

	applog "ctshub/internal/platform/log"
)

// FileResource 一次调查期间使用的临时文件。由恰好一个请求持有，
// 无论调查成功、失败还是启动前被中止，都恰好删除一次。
type FileResource struct {
	Path     string
	Encoding string // 入站 Content-Transfer-Encoding，原样透传给 searcher

	once sync.Once
}

// NewFileResource 把入站字节流写入 dir 下的临时文件。
// 写入失败时临时文件已被清理。
func NewFileResource(dir string, src io.Reader, encoding string) (*FileResource, error) {
	f, err := os.CreateTemp(dir, "cts-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	return &FileResource{Path: f.Name(), Encoding: encoding}, nil
}

// Open 打开底层文件供读取。searcher 运行期间文件保证存在。
func (r *FileResource) Open() (*os.File, error) {
	return os.Open(r.Path)
}

// Release 删除底层文件。可对 nil 接收者调用；重复调用只删除一次。
func (r *FileResource) Release() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		if err := os.Remove(r.Path); err != nil {
			applog.Warn("[FileResource] Failed to remove temp file", "path", r.Path, "error", err)
		}
	})
}
