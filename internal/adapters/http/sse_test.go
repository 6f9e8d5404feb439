package httpadapter

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/kirillkom/documind/internal/config"
	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/observability/metrics"
)

func TestQueryStreamWritesFramesThenDone(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, Dependencies{Query: queryFake{events: []domain.StreamEvent{
		{Text: "Twenty "},
		{Text: "<days>"},
		{Done: true, Sources: []domain.Source{{ID: 2, Name: "policy.md"}}},
	}}})

	res := doJSON(t, handler, http.MethodPost, "/v1/chat/query-stream", map[string]any{
		"projectId": 1,
		"question":  "How much PTO?",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	want := "data: {\"text\":\"Twenty \"}\n\n" +
		"data: {\"text\":\"<days>\"}\n\n" +
		"data: [DONE]\n\n"
	if got := res.Body.String(); got != want {
		t.Fatalf("unexpected stream body:\n%q\nwant:\n%q", got, want)
	}
}

func TestQueryStreamErrorFrameEndsWithoutDone(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, Dependencies{Query: queryFake{events: []domain.StreamEvent{
		{Text: "partial"},
		{Err: domain.WrapError(domain.ErrGeneration, "stream", errors.New("connection reset"))},
	}}})

	res := doJSON(t, handler, http.MethodPost, "/v1/chat/query-stream", map[string]any{
		"projectId": 1,
		"question":  "q",
	})
	body := res.Body.String()
	if !strings.HasSuffix(body, "data: {\"error\":\"failed to generate an answer\"}\n\n") {
		t.Fatalf("expected trailing error frame, got %q", body)
	}
	if strings.Contains(body, "[DONE]") {
		t.Fatalf("error stream must not end with [DONE]: %q", body)
	}
}

func TestQueryStreamMissingProjectIsErrorFrame(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, Dependencies{Query: queryFake{events: []domain.StreamEvent{
		{Err: domain.WrapError(domain.ErrNotFound, "answer", errors.New("project 9"))},
	}}})

	res := doJSON(t, handler, http.MethodPost, "/v1/chat/query-stream", map[string]any{
		"projectId": 9,
		"question":  "q",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected stream to open with 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "not found") {
		t.Fatalf("expected not found in error frame, got %q", res.Body.String())
	}
}

func TestQueryStreamInvalidRequestIs400BeforeStreaming(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, Dependencies{})

	for name, body := range map[string]map[string]any{
		"missing question":  {"projectId": 1},
		"blank question":    {"projectId": 1, "question": "   "},
		"missing projectId": {"question": "q"},
	} {
		res := doJSON(t, handler, http.MethodPost, "/v1/chat/query-stream", body)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, res.Code)
		}
		if ct := res.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("%s: expected json error, got %q", name, ct)
		}
	}
}

func TestQueryStreamRecordsMetrics(t *testing.T) {
	m := metrics.NewHTTPServerMetrics("api", metrics.NewRegistry())
	handler := newTestHandler(t, config.Config{}, Dependencies{
		Metrics: m,
		Query: queryFake{events: []domain.StreamEvent{
			{Text: "a"},
			{Done: true, Sources: []domain.Source{{ID: 1}}, ChunkCount: 3},
		}},
	})

	doJSON(t, handler, http.MethodPost, "/v1/chat/query-stream", map[string]any{"projectId": 1, "question": "q"})

	res := doJSON(t, handler, http.MethodGet, "/metrics", nil)
	for _, want := range []string{
		`documind_rag_retrieval_hit_total{endpoint="query-stream",service="api"} 1`,
		// three chunks from one source document
		`documind_rag_retrieved_chunks_sum{endpoint="query-stream",service="api"} 3`,
	} {
		if !strings.Contains(res.Body.String(), want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}
