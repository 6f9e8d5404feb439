package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	return c.execute(ctx, operation, func(ctx context.Context) error {
		resp, err := c.send(ctx, c.httpClient, path, body, operation)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	})
}

// openStream posts payload and hands back the open response body. The
// caller owns the body and must close it.
func (c *Client) openStream(ctx context.Context, path string, payload any, operation string) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", operation, err)
	}

	var stream io.ReadCloser
	err = c.execute(ctx, operation, func(ctx context.Context) error {
		resp, err := c.send(ctx, c.streamClient, path, body, operation)
		if err != nil {
			return err
		}
		stream = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (c *Client) send(ctx context.Context, client *http.Client, path string, body []byte, operation string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama %s request: %w", operation, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, formatOllamaHTTPError(operation, resp)
	}
	return resp, nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if c.exec == nil {
		err = fn(ctx)
	} else {
		err = c.exec.Execute(ctx, "ollama."+operation, fn, classifyOllamaError)
	}
	return wrapTemporaryIfNeeded("ollama "+operation, err)
}

func formatOllamaHTTPError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}
