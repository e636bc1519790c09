package searcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"time"

	"ctshub/internal/domain/artifact"
	"ctshub/internal/domain/search"
)

// HTTPSearcher 把调查请求转发给上游搜索服务的 searcher 实现。
// 无文件时发 JSON，带文件时发 multipart（artifact part + file part）。
// 响应 body 作为不透明 hit payload 原样返回。
type HTTPSearcher struct {
	client *http.Client
	url    string
}

// New 创建 HTTP searcher。timeout 约束单次上游调用。
func New(url string, timeout time.Duration) *HTTPSearcher {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPSearcher{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// Search 实现 search.Searcher。
func (s *HTTPSearcher) Search(ctx context.Context, fp artifact.Fingerprint, file *search.FileResource) (json.RawMessage, error) {
	var (
		req *http.Request
		err error
	)
	if file == nil {
		req, err = s.jsonRequest(ctx, fp)
	} else {
		req, err = s.multipartRequest(ctx, fp, file)
	}
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call searcher: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read searcher response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("searcher returned status %d: %s", resp.StatusCode, body)
	}
	return json.RawMessage(body), nil
}

func (s *HTTPSearcher) jsonRequest(ctx context.Context, fp artifact.Fingerprint) (*http.Request, error) {
	payload, err := json.Marshal(fp)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build searcher request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (s *HTTPSearcher) multipartRequest(ctx context.Context, fp artifact.Fingerprint, file *search.FileResource) (*http.Request, error) {
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	artifactHeader := textproto.MIMEHeader{}
	artifactHeader.Set("Content-Disposition", `form-data; name="artifact"`)
	artifactHeader.Set("Content-Type", "application/json")
	part, err := writer.CreatePart(artifactHeader)
	if err != nil {
		return nil, fmt.Errorf("create artifact part: %w", err)
	}
	if err := json.NewEncoder(part).Encode(fp); err != nil {
		return nil, fmt.Errorf("encode artifact part: %w", err)
	}

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(file.Path)))
	fileHeader.Set("Content-Type", "application/octet-stream")
	if file.Encoding != "" {
		fileHeader.Set("Content-Transfer-Encoding", file.Encoding)
	}
	filePart, err := writer.CreatePart(fileHeader)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(filePart, f); err != nil {
		return nil, fmt.Errorf("copy file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build searcher request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}
