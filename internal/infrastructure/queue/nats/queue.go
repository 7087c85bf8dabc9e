package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/workspace-ingest/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

// Queue carries document ids from the API to workers over a NATS subject.
type Queue struct {
	conn     *nats.Conn
	subject  string
	group    string
	executor *resilience.Executor
	onLag    func(time.Duration)
}

// submittedAtHeader carries the publish time so consumers can observe queue lag.
const submittedAtHeader = "Wsi-Submitted-At"

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ClientName           string
	QueueGroup           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// LagObserver receives the time between publish and delivery of each message.
	LagObserver func(time.Duration)
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
	if options.ClientName == "" {
		options.ClientName = "workspace-ingest"
	}
	if options.QueueGroup == "" {
		options.QueueGroup = "workers"
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name(options.ClientName),
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
		group:    options.QueueGroup,
		executor: options.ResilienceExecutor,
		onLag:    options.LagObserver,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Submit(ctx context.Context, documentID string) error {
	call := func(_ context.Context) error {
		msg := nats.NewMsg(q.subject)
		msg.Data = []byte(documentID)
		msg.Header.Set(submittedAtHeader, time.Now().UTC().Format(time.RFC3339Nano))
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (q *Queue) Subscribe(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		if q.onLag != nil {
			if lag, ok := deliveryLag(msg, time.Now()); ok {
				q.onLag(lag)
			}
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, string(msg.Data)); err != nil {
			slog.Error("document_process_failed", "document_id", string(msg.Data), "error", err)
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
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func deliveryLag(msg *nats.Msg, now time.Time) (time.Duration, bool) {
	if msg.Header == nil {
		return 0, false
	}
	submittedAt, err := time.Parse(time.RFC3339Nano, msg.Header.Get(submittedAtHeader))
	if err != nil {
		return 0, false
	}
	return now.Sub(submittedAt), true
}
