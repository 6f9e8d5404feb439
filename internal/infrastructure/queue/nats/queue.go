package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

const workerGroup = "ingest-workers"

// Queue hands ingestion jobs to worker processes over NATS. Only the document
// ID travels on the wire; workers read the bytes back from object storage.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

type ingestionMessage struct {
	DocumentID int64           `json:"document_id"`
	FileType   domain.FileType `json:"file_type"`
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("documind"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// BeginIngestion publishes the job and returns without waiting for a worker.
func (q *Queue) BeginIngestion(ctx context.Context, job domain.IngestionJob) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}

	call := func(context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// Subscribe runs handler for every published job until ctx is done, then
// drains in-flight messages.
func (q *Queue) Subscribe(ctx context.Context, handler func(context.Context, int64) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		documentID, err := decodeJob(msg.Data)
		if err != nil {
			slog.Error("ingestion_message_invalid", "error", err, "payload", string(msg.Data))
			return
		}
		if err := handler(ctx, documentID); err != nil {
			slog.Error("ingestion_handler_failed", "document_id", documentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeJob(job domain.IngestionJob) ([]byte, error) {
	if job.DocumentID <= 0 {
		return nil, fmt.Errorf("%w: document id must be positive", domain.ErrInvalidInput)
	}
	payload, err := json.Marshal(ingestionMessage{DocumentID: job.DocumentID, FileType: job.FileType})
	if err != nil {
		return nil, fmt.Errorf("marshal ingestion message: %w", err)
	}
	return payload, nil
}

func decodeJob(data []byte) (int64, error) {
	var msg ingestionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return 0, fmt.Errorf("unmarshal ingestion message: %w", err)
	}
	if msg.DocumentID <= 0 {
		return 0, fmt.Errorf("%w: document id must be positive", domain.ErrInvalidInput)
	}
	return msg.DocumentID, nil
}
