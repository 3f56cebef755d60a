package typedlogs

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"logscope/internal/metrics"
)

// Middleware forwards every Client call to an inner client and adds typed
// log subscriptions on top. A Middleware is itself a PubsubClient, so
// wrappers stack.
type Middleware struct {
	Client

	pubsub PubsubClient
	logger *zap.Logger
}

var _ PubsubClient = (*Middleware)(nil)

// NewMiddleware wraps inner. Whether inner can push logs is decided here, once.
func NewMiddleware(inner Client, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		Client: inner,
		pubsub: pubsubOf(inner),
		logger: logger,
	}
}

// Inner returns the wrapped client.
func (m *Middleware) Inner() Client {
	return m.Client
}

// SupportsPubsub reports whether SubscribeTypedLogs can succeed.
func (m *Middleware) SupportsPubsub() bool {
	return m.pubsub != nil
}

// SupportsSubscriptions lets a Middleware wrapping this one see the same push
// capability.
func (m *Middleware) SupportsSubscriptions() bool {
	return m.pubsub != nil
}

// SubscribeFilterLogs forwards a raw log subscription to the inner client.
func (m *Middleware) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	if m.pubsub == nil {
		return nil, ErrPubsubUnsupported
	}
	return m.pubsub.SubscribeFilterLogs(ctx, q, ch)
}

// SubscribeTypedLogs subscribes to logs matching filter and returns a stream
// that decodes each one with decoder. If the subscription cannot be set up,
// an *Error is returned and no stream is created.
func SubscribeTypedLogs[R any](ctx context.Context, m *Middleware, filter ethereum.FilterQuery, decoder Decoder[R]) (*Stream[R], error) {
	if m.pubsub == nil {
		metrics.SubscribeFailures.Inc()
		return nil, &Error{Op: "subscribe", Err: ErrPubsubUnsupported}
	}

	logs := make(chan types.Log)
	sub, err := m.pubsub.SubscribeFilterLogs(ctx, filter, logs)
	if err != nil {
		metrics.SubscribeFailures.Inc()
		return nil, &Error{Op: "subscribe", Err: err}
	}

	m.logger.Debug("typed log subscription open",
		zap.Int("addresses", len(filter.Addresses)),
		zap.Int("topic_positions", len(filter.Topics)),
	)
	return NewStream(sub, logs, decoder, m.logger), nil
}

// FilterTypedLogs fetches historical logs matching filter and decodes them
// with the same rules as a Stream. Logs the decoder rejects are returned
// separately, in order.
func FilterTypedLogs[R any](ctx context.Context, m *Middleware, filter ethereum.FilterQuery, decoder Decoder[R]) ([]Envelope[R], []*DecodeError, error) {
	logs, err := m.FilterLogs(ctx, filter)
	if err != nil {
		return nil, nil, &Error{Op: "filter", Err: err}
	}

	events := make([]Envelope[R], 0, len(logs))
	var failures []*DecodeError
	for _, gethLog := range logs {
		env, err := decodeLog(decoder, gethLog)
		if err != nil {
			failures = append(failures, err.(*DecodeError))
			continue
		}
		events = append(events, env)
	}

	return events, failures, nil
}
