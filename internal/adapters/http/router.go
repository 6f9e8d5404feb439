package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/documind/internal/config"
	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/core/ports"
	"github.com/kirillkom/documind/internal/observability/metrics"
)

const (
	backpressureWait = 250 * time.Millisecond
	// multipartOverhead covers boundaries and part headers around the file.
	multipartOverhead = 1 << 20
	multipartMemory   = 4 << 20
)

// Dependencies are the inbound services the router dispatches to.
// Metrics is optional.
type Dependencies struct {
	Projects  ports.ProjectService
	Ingestor  ports.DocumentIngestor
	Documents ports.DocumentReader
	Query     ports.DocumentQueryService
	Metrics   *metrics.HTTPServerMetrics
}

type Router struct {
	cfg       config.Config
	projects  ports.ProjectService
	ingestor  ports.DocumentIngestor
	documents ports.DocumentReader
	query     ports.DocumentQueryService
	metrics   *metrics.HTTPServerMetrics
	validator *requestValidator
}

func NewRouter(cfg config.Config, deps Dependencies) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &Router{
		cfg:       cfg,
		projects:  deps.Projects,
		ingestor:  deps.Ingestor,
		documents: deps.Documents,
		query:     deps.Query,
		metrics:   deps.Metrics,
		validator: validator,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware)
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	r.Get("/healthz", rt.healthz)

	r.Group(func(api chi.Router) {
		api.Use(
			func(next http.Handler) http.Handler {
				return rateLimitMiddleware(next, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
			},
			func(next http.Handler) http.Handler {
				return backpressureMiddleware(next, rt.cfg.APIMaxInFlight, backpressureWait)
			},
			rt.validator.Middleware,
		)

		api.Post("/v1/projects", rt.createProject)
		api.Get("/v1/projects/{projectId}", rt.getProject)
		api.Post("/v1/projects/{projectId}/documents", rt.uploadDocument)
		api.Get("/v1/projects/{projectId}/documents", rt.listDocuments)
		api.Get("/v1/documents/{documentId}", rt.getDocument)
		api.Post("/v1/chat/query", rt.queryRAG)
		api.Post("/v1/chat/query-stream", rt.queryRAGStream)
	})

	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (rt *Router) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	project, err := rt.projects.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (rt *Router) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	project, err := rt.projects.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error: fmt.Sprintf("file exceeds the %d byte limit", domain.MaxUploadBytes),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, domain.MaxUploadBytes+1))
	if err != nil {
		writeError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	doc, err := rt.ingestor.Upload(r.Context(), ports.UploadRequest{
		ProjectID: projectID,
		Filename:  fileHeader.Filename,
		Data:      data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	docs, err := rt.documents.ListByProject(r.Context(), projectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "documentId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := rt.documents.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type queryRequest struct {
	ProjectID int64  `json:"projectId"`
	Question  string `json:"question"`
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	answer, err := rt.query.Answer(r.Context(), req.ProjectID, req.Question)
	if err != nil {
		rt.recordRAGFailure("query", err)
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRAGObservation("query", len(answer.Chunks), time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) recordRAGFailure(endpoint string, err error) {
	if rt.metrics != nil {
		rt.metrics.RecordRAGFailure(endpoint, errorKind(err))
	}
}

// pathID binds a positive int64 path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
		runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "bind path", fmt.Errorf("%s: %w", name, err))
	}
	if id <= 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "bind path", fmt.Errorf("%s must be positive", name))
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode body", fmt.Errorf("invalid json body: %w", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("http_response_encode_failed", "error", err)
	}
}
