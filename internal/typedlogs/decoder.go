package typedlogs

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"logscope/internal/model"
)

// ErrEventSignatureMismatch is returned when topic0 does not identify the expected event.
var ErrEventSignatureMismatch = errors.New("event signature mismatch")

// Decoder turns the topics and data of a log into a typed value. Implementations
// must be deterministic and free of side effects.
type Decoder[R any] interface {
	DecodeLog(raw model.RawLog) (R, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc[R any] func(raw model.RawLog) (R, error)

// DecodeLog calls f(raw).
func (f DecoderFunc[R]) DecodeLog(raw model.RawLog) (R, error) {
	return f(raw)
}

// EventDecoder decodes a single ABI event into a struct R whose exported
// fields are named after the event arguments in camel case.
type EventDecoder[R any] struct {
	event   abi.Event
	indexed abi.Arguments
}

// NewEventDecoder builds a decoder for the named event of contractABI.
func NewEventDecoder[R any](contractABI abi.ABI, name string) (*EventDecoder[R], error) {
	event, ok := contractABI.Events[name]
	if !ok {
		return nil, fmt.Errorf("event %q not found in abi", name)
	}

	indexed := make(abi.Arguments, 0, len(event.Inputs))
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}

	return &EventDecoder[R]{event: event, indexed: indexed}, nil
}

// ID returns the topic0 value of the event.
func (d *EventDecoder[R]) ID() common.Hash {
	return d.event.ID
}

// DecodeLog unpacks indexed arguments from the topics and the rest from data.
func (d *EventDecoder[R]) DecodeLog(raw model.RawLog) (R, error) {
	var out R

	topics := raw.Topics
	if !d.event.Anonymous {
		topic0, ok := raw.Topic0()
		if !ok {
			return out, fmt.Errorf("%w: log has no topics", ErrEventSignatureMismatch)
		}
		if topic0 != d.event.ID {
			return out, fmt.Errorf("%w: want %s, got %s", ErrEventSignatureMismatch, d.event.ID.Hex(), topic0.Hex())
		}
		topics = topics[1:]
	}
	if len(topics) != len(d.indexed) {
		return out, fmt.Errorf("%s: expected %d indexed topics, got %d", d.event.Name, len(d.indexed), len(topics))
	}

	values, err := d.event.Inputs.Unpack(raw.Data)
	if err != nil {
		return out, fmt.Errorf("unpack %s: %w", d.event.Name, err)
	}
	if err := d.event.Inputs.Copy(&out, values); err != nil {
		return out, fmt.Errorf("copy %s: %w", d.event.Name, err)
	}
	if err := abi.ParseTopics(&out, d.indexed, topics); err != nil {
		return out, fmt.Errorf("parse topics %s: %w", d.event.Name, err)
	}

	return out, nil
}
