package typedlogs

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"logscope/internal/metrics"
	"logscope/internal/model"
)

// Envelope pairs a decoded event with the log it was decoded from.
type Envelope[R any] struct {
	Event R
	Log   model.Log
}

// Stream is a single-pass sequence of typed events backed by a raw log
// subscription. Each pull consumes exactly one raw log.
//
// A Stream is not safe for concurrent use.
type Stream[R any] struct {
	sub     ethereum.Subscription
	logs    <-chan types.Log
	decoder Decoder[R]
	logger  *zap.Logger

	err       error
	closeOnce sync.Once
}

// NewStream wraps a subscription and the channel it delivers logs on. The
// channel should be unbuffered so that the stream never reads ahead.
func NewStream[R any](sub ethereum.Subscription, logs <-chan types.Log, decoder Decoder[R], logger *zap.Logger) *Stream[R] {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.ActiveSubscriptions.Inc()
	return &Stream[R]{
		sub:     sub,
		logs:    logs,
		decoder: decoder,
		logger:  logger,
	}
}

// Next returns the next decoded event.
//
// A *DecodeError means this log was rejected; later calls continue with the
// next log. ErrStreamExhausted means the subscription ended. An *Error means
// the transport failed; the stream is then finished and returns the same error.
func (s *Stream[R]) Next(ctx context.Context) (R, error) {
	env, err := s.NextEnvelope(ctx)
	return env.Event, err
}

// NextEnvelope is like Next but also returns the raw log.
func (s *Stream[R]) NextEnvelope(ctx context.Context) (Envelope[R], error) {
	if s.err != nil {
		return Envelope[R]{}, s.err
	}

	// Logs delivered before the subscription ended are still yielded.
	select {
	case log := <-s.logs:
		return s.decode(log)
	default:
	}

	select {
	case log := <-s.logs:
		return s.decode(log)
	case err, ok := <-s.sub.Err():
		if !ok || err == nil {
			s.finish(ErrStreamExhausted)
			s.logger.Debug("subscription ended")
		} else {
			s.finish(&Error{Op: "stream", Err: err})
			s.logger.Warn("subscription failed", zap.Error(err))
		}
		return Envelope[R]{}, s.err
	case <-ctx.Done():
		return Envelope[R]{}, ctx.Err()
	}
}

func (s *Stream[R]) decode(gethLog types.Log) (Envelope[R], error) {
	return decodeLog(s.decoder, gethLog)
}

func decodeLog[R any](decoder Decoder[R], gethLog types.Log) (Envelope[R], error) {
	log := model.FromGethLog(gethLog)
	if err := log.Validate(); err != nil {
		metrics.DecodeFailures.Inc()
		return Envelope[R]{Log: log}, &DecodeError{Log: log, Err: err}
	}

	event, err := decoder.DecodeLog(log.RawLog())
	if err != nil {
		metrics.DecodeFailures.Inc()
		return Envelope[R]{Log: log}, &DecodeError{Log: log, Err: err}
	}

	metrics.LogsDecoded.Inc()
	return Envelope[R]{Event: event, Log: log}, nil
}

func (s *Stream[R]) finish(err error) {
	s.err = err
	s.Close()
}

// Close releases the inner subscription. It is safe to call more than once.
func (s *Stream[R]) Close() {
	s.closeOnce.Do(func() {
		s.sub.Unsubscribe()
		metrics.ActiveSubscriptions.Dec()
		if s.err == nil {
			s.err = ErrStreamExhausted
		}
	})
}

// All returns an iterator over the remaining events. Decode failures are
// yielded as *DecodeError values; a transport failure is yielded once before
// the iteration stops. The stream is closed when the loop ends, including on
// break.
func (s *Stream[R]) All(ctx context.Context) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		defer s.Close()
		for {
			event, err := s.Next(ctx)
			if errors.Is(err, ErrStreamExhausted) {
				return
			}
			if err != nil && !IsDecodeError(err) {
				yield(event, err)
				return
			}
			if !yield(event, err) {
				return
			}
		}
	}
}
