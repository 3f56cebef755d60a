package storage

import (
	"context"
	"errors"

	"logscope/internal/model"
)

// Sink receives decoded events and the logs that failed to decode.
type Sink interface {
	PutEvents(ctx context.Context, events []model.TypedEvent) error
	PutDecodeErrors(ctx context.Context, records []model.DecodeError) error
}

// Multi fans writes out to every sink in order.
type Multi []Sink

func (m Multi) PutEvents(ctx context.Context, events []model.TypedEvent) error {
	var errs []error
	for _, sink := range m {
		if err := sink.PutEvents(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) PutDecodeErrors(ctx context.Context, records []model.DecodeError) error {
	var errs []error
	for _, sink := range m {
		if err := sink.PutDecodeErrors(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
