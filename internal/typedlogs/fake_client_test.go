package typedlogs

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// fakeClient is an in-memory PubsubClient. Each subscription delivers logs in
// order, then either waits for Unsubscribe (hold) or ends with streamErr.
type fakeClient struct {
	chainID    *big.Int
	head       uint64
	logs       []types.Log
	filterLogs []types.Log
	filterErr  error
	subErr     error
	streamErr  error
	hold       bool

	active     atomic.Int32
	subscribes atomic.Int32
	lastFilter ethereum.FilterQuery
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if number == nil {
		number = new(big.Int).SetUint64(f.head)
	}
	return &types.Header{Number: number, Time: 1700000000 + number.Uint64()}, nil
}

func (f *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.lastFilter = q
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	return f.filterLogs, nil
}

func (f *fakeClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.subscribes.Add(1)
	f.lastFilter = q
	if f.subErr != nil {
		return nil, f.subErr
	}

	logs := append([]types.Log(nil), f.logs...)
	f.active.Add(1)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer f.active.Add(-1)
		for _, log := range logs {
			select {
			case ch <- log:
			case <-quit:
				return nil
			}
		}
		if f.hold {
			<-quit
			return nil
		}
		return f.streamErr
	}), nil
}

// plainClient exposes only the forwarded operations.
type plainClient struct {
	inner *fakeClient
}

func (p plainClient) ChainID(ctx context.Context) (*big.Int, error) {
	return p.inner.ChainID(ctx)
}

func (p plainClient) BlockNumber(ctx context.Context) (uint64, error) {
	return p.inner.BlockNumber(ctx)
}

func (p plainClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return p.inner.HeaderByNumber(ctx, number)
}

func (p plainClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return p.inner.CallContract(ctx, msg, blockNumber)
}

func (p plainClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return p.inner.FilterLogs(ctx, q)
}

// httpClient has the subscribe method but reports that its transport cannot push.
type httpClient struct {
	*fakeClient
}

func (httpClient) SupportsSubscriptions() bool {
	return false
}

func minedLog(block uint64, index uint, topics []common.Hash, data []byte) types.Log {
	return types.Log{
		Address:     common.HexToAddress("0x1d244648d5a63618751d006886268ae3550d0dfd"),
		Topics:      topics,
		Data:        data,
		BlockNumber: block,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(block)),
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index))),
		Index:       index,
	}
}
