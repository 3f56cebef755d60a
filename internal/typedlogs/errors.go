package typedlogs

import (
	"errors"
	"fmt"

	"logscope/internal/model"
)

var (
	// ErrStreamExhausted is returned by a Stream once the inner subscription has ended.
	ErrStreamExhausted = errors.New("typed log stream exhausted")

	// ErrPubsubUnsupported is returned when the inner client cannot push logs.
	ErrPubsubUnsupported = errors.New("inner client does not support subscriptions")
)

// Error wraps a failure of the inner client.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("typedlogs %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DecodeError reports a log the decoder rejected. The stream that produced it
// remains usable.
type DecodeError struct {
	Log model.Log
	Err error
}

func (e *DecodeError) Error() string {
	topic0 := "none"
	if len(e.Log.Topics) > 0 {
		topic0 = e.Log.Topics[0].Hex()
	}
	return fmt.Sprintf("decode log from %s (topic0 %s, block %d, index %d): %v",
		e.Log.Address.Hex(), topic0, e.Log.BlockNumberValue(), e.Log.LogIndexValue(), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is a per-item decode failure.
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}
