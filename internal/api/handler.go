package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ctshub/internal/domain/artifact"
	"ctshub/internal/domain/search"
	applog "ctshub/internal/platform/log"
)

// SearchService scan handler 依赖的编排能力。
type SearchService interface {
	Submit(ctx context.Context, fp artifact.Fingerprint, file *search.FileResource) (*search.Outcome, error)
	Lookup(ctx context.Context, searchID string) (*search.Outcome, error)
}

// ScanHandler artifact 扫描 API 处理器。
type ScanHandler struct {
	svc         SearchService
	uploads     bool
	tempDir     string
	maxUploadMB int
}

// NewScanHandler 创建处理器。
func NewScanHandler(svc SearchService, uploads bool, tempDir string, maxUploadMB int) *ScanHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 64
	}
	return &ScanHandler{svc: svc, uploads: uploads, tempDir: tempDir, maxUploadMB: maxUploadMB}
}

// RegisterRoutes 注册路由。
func (h *ScanHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.ScanArtifact)
	r.Get("/{id}", h.RetrieveResult)
	r.Options("/", h.QueryCapabilities)
}

// ScanArtifact 接收扫描请求。application/json 只带 artifact 描述；
// multipart/form-data 第一个 part 是 artifact JSON，第二个 part 是文件内容。
func (h *ScanHandler) ScanArtifact(w http.ResponseWriter, r *http.Request) {
	var (
		fp   artifact.Fingerprint
		file *search.FileResource
		err  error
	)

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		fp, err = h.parseArtifactJSON(r)
	case strings.HasPrefix(contentType, "multipart/"):
		if !h.uploads {
			writeError(w, http.StatusBadRequest, "file uploads are disabled")
			return
		}
		fp, file, err = h.parseMultipart(w, r)
	default:
		writeError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported content type %q", contentType))
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.svc.Submit(r.Context(), fp, file)
	if err != nil {
		applog.Error("[API] Scan request failed", "fingerprint", fp.String(), "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// RetrieveResult 按 search_id 查询一次调查的当前状态。
func (h *ScanHandler) RetrieveResult(w http.ResponseWriter, r *http.Request) {
	searchID := chi.URLParam(r, "id")

	outcome, err := h.svc.Lookup(r.Context(), searchID)
	if errors.Is(err, search.ErrUnknownSearchID) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		applog.Error("[API] Result lookup failed", "search_id", searchID, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// Capabilities OPTIONS 响应体。
type Capabilities struct {
	UploadFiles    bool     `json:"upload_files"`
	SupportedTypes []string `json:"supported_types"`
}

// QueryCapabilities 返回本实例的能力声明。
func (h *ScanHandler) QueryCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Capabilities{
		UploadFiles:    h.uploads,
		SupportedTypes: artifact.SupportedTypes,
	})
}

func (h *ScanHandler) parseArtifactJSON(r *http.Request) (artifact.Fingerprint, error) {
	var props map[string]string
	if err := json.NewDecoder(r.Body).Decode(&props); err != nil {
		return artifact.Fingerprint{}, fmt.Errorf("decode artifact payload: %w", err)
	}
	return fingerprintFromProps(props)
}

// parseMultipart 流式解析 multipart 请求：第一个 part 描述 artifact，
// 第二个 part 的内容写入临时文件。
func (h *ScanHandler) parseMultipart(w http.ResponseWriter, r *http.Request) (artifact.Fingerprint, *search.FileResource, error) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxUploadMB)<<20)

	reader, err := r.MultipartReader()
	if err != nil {
		return artifact.Fingerprint{}, nil, fmt.Errorf("read multipart request: %w", err)
	}

	artifactPart, err := reader.NextPart()
	if err != nil {
		return artifact.Fingerprint{}, nil, fmt.Errorf("read artifact part: %w", err)
	}
	var props map[string]string
	if err := json.NewDecoder(artifactPart).Decode(&props); err != nil {
		return artifact.Fingerprint{}, nil, fmt.Errorf("decode artifact part: %w", err)
	}
	fp, err := fingerprintFromProps(props)
	if err != nil {
		return artifact.Fingerprint{}, nil, err
	}

	filePart, err := reader.NextPart()
	if err != nil {
		return artifact.Fingerprint{}, nil, fmt.Errorf("read file part: %w", err)
	}
	file, err := search.NewFileResource(h.tempDir, filePart, filePart.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return artifact.Fingerprint{}, nil, fmt.Errorf("stage uploaded file: %w", err)
	}

	return fp, file, nil
}

func fingerprintFromProps(props map[string]string) (artifact.Fingerprint, error) {
	if err := artifact.ValidateProperties(props); err != nil {
		return artifact.Fingerprint{}, err
	}
	return artifact.NewFingerprint(props["type"], props["value"])
}

// statusFor 把领域错误映射到 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, search.ErrInvalidQuery), errors.Is(err, artifact.ErrEmptyField):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
