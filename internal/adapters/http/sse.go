package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/documind/internal/core/domain"
)

const sseDoneFrame = "data: [DONE]\n\n"

type sseTextFrame struct {
	Text string `json:"text"`
}

// sseWriter writes `data:` frames and flushes after each one.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	return &sseWriter{w: w, rc: rc}
}

func (s *sseWriter) data(payload any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", bytes.TrimRight(buf.Bytes(), "\n")); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseWriter) done() error {
	if _, err := io.WriteString(s.w, sseDoneFrame); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseWriter) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// queryRAGStream answers over SSE. Request problems are reported as a JSON
// 400 before the stream opens; failures after that become a single error
// frame that ends the stream without [DONE].
func (rt *Router) queryRAGStream(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ProjectID <= 0 || strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "projectId and question are required"})
		return
	}

	start := time.Now()
	stream := newSSEWriter(w)
	for event := range rt.query.AnswerStream(r.Context(), req.ProjectID, req.Question) {
		switch {
		case event.Err != nil:
			rt.recordRAGFailure("query-stream", event.Err)
			slog.Warn("rag_stream_failed",
				"request_id", requestIDFromContext(r.Context()),
				"project_id", req.ProjectID,
				"error", event.Err,
			)
			if err := stream.data(errorResponse{Error: streamErrorMessage(event.Err)}); err != nil {
				slog.Debug("sse_write_failed", "error", err)
			}
			return
		case event.Done:
			if rt.metrics != nil {
				rt.metrics.RecordRAGObservation("query-stream", event.ChunkCount, time.Since(start))
			}
			if err := stream.done(); err != nil {
				slog.Debug("sse_write_failed", "error", err)
			}
			return
		default:
			if err := stream.data(sseTextFrame{Text: event.Text}); err != nil {
				// Client went away; breaking stops the producer.
				slog.Debug("sse_write_failed", "error", err)
				return
			}
		}
	}
}

func streamErrorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrNotFound), domain.IsKind(err, domain.ErrInvalidInput):
		return err.Error()
	case domain.IsKind(err, domain.ErrEmbedding):
		return "failed to embed the question"
	case domain.IsKind(err, domain.ErrGeneration):
		return "failed to generate an answer"
	default:
		return "internal error"
	}
}
