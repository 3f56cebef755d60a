package typedlogs

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"logscope/internal/model"
)

var checkpointTopic = common.HexToHash("0x0559884fd3a460db3073b7fc896cc77986f16e378210ded43186175bf646fc5f")

type checkpointEvent struct {
	Epoch     *big.Int
	Height    *big.Int
	Timestamp *big.Int
}

func decodeCheckpoint(raw model.RawLog) (checkpointEvent, error) {
	topic0, ok := raw.Topic0()
	if !ok || topic0 != checkpointTopic {
		return checkpointEvent{}, ErrEventSignatureMismatch
	}
	if len(raw.Topics) != 3 {
		return checkpointEvent{}, fmt.Errorf("expected 3 topics, got %d", len(raw.Topics))
	}

	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return checkpointEvent{}, err
	}
	values, err := abi.Arguments{{Name: "timestamp", Type: uint256Type}}.Unpack(raw.Data)
	if err != nil {
		return checkpointEvent{}, err
	}

	return checkpointEvent{
		Epoch:     raw.Topics[1].Big(),
		Height:    raw.Topics[2].Big(),
		Timestamp: values[0].(*big.Int),
	}, nil
}

func checkpointLog(block uint64, index uint, timestamp int64) model.Log {
	return model.FromGethLog(minedLog(block, index, []common.Hash{
		checkpointTopic,
		common.BigToHash(big.NewInt(0x5f46d7d)),
		common.BigToHash(big.NewInt(0x2648)),
	}, common.BigToHash(big.NewInt(timestamp)).Bytes()))
}

func newCheckpointStream(t *testing.T, client *fakeClient) *Stream[checkpointEvent] {
	t.Helper()
	m := NewMiddleware(client, nil)
	stream, err := SubscribeTypedLogs[checkpointEvent](context.Background(), m, ethereum.FilterQuery{}, DecoderFunc[checkpointEvent](decodeCheckpoint))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return stream
}

func TestStreamDecodeErrorDoesNotEndStream(t *testing.T) {
	good1 := checkpointLog(100, 0, 0x637b833f)
	bad := checkpointLog(100, 1, 0)
	bad.Data = []byte{0x01, 0x02, 0x03}
	good2 := checkpointLog(101, 0, 0x637b8340)

	client := &fakeClient{logs: []types.Log{good1.GethLog(), bad.GethLog(), good2.GethLog()}}
	stream := newCheckpointStream(t, client)
	defer stream.Close()

	ctx := context.Background()

	first, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Timestamp.Int64() != 0x637b833f || first.Epoch.Int64() != 0x5f46d7d || first.Height.Int64() != 0x2648 {
		t.Fatalf("first mismatch: %+v", first)
	}

	_, err = stream.Next(ctx)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decodeErr.Log.LogIndexValue() != 1 || decodeErr.Log.BlockNumberValue() != 100 {
		t.Fatalf("decode error attributed to wrong log: %+v", decodeErr.Log)
	}

	third, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if third.Timestamp.Int64() != 0x637b8340 {
		t.Fatalf("third mismatch: %+v", third)
	}

	for i := 0; i < 2; i++ {
		if _, err := stream.Next(ctx); !errors.Is(err, ErrStreamExhausted) {
			t.Fatalf("expected ErrStreamExhausted, got %v", err)
		}
	}
}

func TestStreamPreservesOrder(t *testing.T) {
	var logs []types.Log
	want := make([]int64, 0)
	for i := 0; i < 10; i++ {
		l := checkpointLog(uint64(200+i), 0, int64(i))
		if i%3 == 2 {
			l.Data = nil
		} else {
			want = append(want, int64(i))
		}
		logs = append(logs, l.GethLog())
	}

	client := &fakeClient{logs: logs}
	stream := newCheckpointStream(t, client)

	got := make([]int64, 0)
	failures := 0
	for event, err := range stream.All(context.Background()) {
		if err != nil {
			if !IsDecodeError(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			failures++
			continue
		}
		got = append(got, event.Timestamp.Int64())
	}

	if len(got) != len(want) {
		t.Fatalf("decoded %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: %v != %v", i, got, want)
		}
	}
	if failures != 10-len(want) {
		t.Fatalf("failures mismatch: %d", failures)
	}
	if n := client.active.Load(); n != 0 {
		t.Fatalf("active subscriptions: %d", n)
	}
}

func TestStreamTransportFailure(t *testing.T) {
	reset := errors.New("connection reset")
	client := &fakeClient{
		logs:      []types.Log{checkpointLog(1, 0, 1).GethLog()},
		streamErr: reset,
	}
	stream := newCheckpointStream(t, client)
	defer stream.Close()

	ctx := context.Background()
	if _, err := stream.Next(ctx); err != nil {
		t.Fatalf("first: %v", err)
	}

	_, err := stream.Next(ctx)
	if !errors.Is(err, reset) {
		t.Fatalf("expected transport error, got %v", err)
	}
	var wrapped *Error
	if !errors.As(err, &wrapped) || wrapped.Op != "stream" {
		t.Fatalf("expected *Error with op stream, got %v", err)
	}
	if IsDecodeError(err) || errors.Is(err, ErrStreamExhausted) {
		t.Fatalf("transport failure must be distinguishable: %v", err)
	}

	if _, again := stream.Next(ctx); !errors.Is(again, reset) {
		t.Fatalf("transport failure should be sticky, got %v", again)
	}
}

func TestStreamCloseReleasesSubscription(t *testing.T) {
	var logs []types.Log
	for i := 0; i < 5; i++ {
		logs = append(logs, checkpointLog(uint64(300+i), 0, int64(i)).GethLog())
	}
	client := &fakeClient{logs: logs, hold: true}

	stream := newCheckpointStream(t, client)
	if n := client.active.Load(); n != 1 {
		t.Fatalf("active subscriptions: %d", n)
	}

	pulled := 0
	for _, err := range stream.All(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		pulled++
		if pulled == 2 {
			break
		}
	}

	if n := client.active.Load(); n != 0 {
		t.Fatalf("subscription not released after break: %d active", n)
	}
	if _, err := stream.Next(context.Background()); !errors.Is(err, ErrStreamExhausted) {
		t.Fatalf("closed stream should be exhausted, got %v", err)
	}
}

func TestStreamExplicitClose(t *testing.T) {
	client := &fakeClient{
		logs: []types.Log{checkpointLog(1, 0, 1).GethLog(), checkpointLog(2, 0, 2).GethLog()},
		hold: true,
	}
	stream := newCheckpointStream(t, client)

	if _, err := stream.Next(context.Background()); err != nil {
		t.Fatalf("next: %v", err)
	}
	stream.Close()
	stream.Close()

	if n := client.active.Load(); n != 0 {
		t.Fatalf("active subscriptions: %d", n)
	}
}

func TestStreamContextCancel(t *testing.T) {
	client := &fakeClient{hold: true}
	stream := newCheckpointStream(t, client)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := stream.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if n := client.active.Load(); n != 1 {
		t.Fatalf("a cancelled pull must not close the subscription: %d active", n)
	}
}

func TestStreamRejectsTooManyTopics(t *testing.T) {
	topics := []common.Hash{checkpointTopic, {}, {}, {}, {}}
	client := &fakeClient{logs: []types.Log{minedLog(1, 0, topics, nil)}}
	stream := newCheckpointStream(t, client)
	defer stream.Close()

	_, err := stream.Next(context.Background())
	if !errors.Is(err, model.ErrTooManyTopics) || !IsDecodeError(err) {
		t.Fatalf("expected decode error for five topics, got %v", err)
	}
}
