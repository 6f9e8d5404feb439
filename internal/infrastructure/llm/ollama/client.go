// Package ollama talks to an Ollama server for embeddings and generation.
package ollama

import (
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/documind/internal/infrastructure/resilience"
)

type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	exec         *resilience.Executor
}

// New builds a client. exec may be nil, in which case calls run once
// without a circuit breaker.
func New(baseURL string, timeout time.Duration, exec *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		// Streams live as long as the caller's context.
		streamClient: &http.Client{},
		exec:         exec,
	}
}
