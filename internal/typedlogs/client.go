// Package typedlogs decorates an Ethereum client with subscriptions that yield
// decoded events instead of raw logs.
package typedlogs

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client is the set of operations the middleware forwards to its inner client.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// PubsubClient is a Client that can push logs over a subscription.
type PubsubClient interface {
	Client
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// subscriptionReporter is implemented by clients whose push support depends on
// the transport they were dialed with.
type subscriptionReporter interface {
	SupportsSubscriptions() bool
}

func pubsubOf(inner Client) PubsubClient {
	ps, ok := inner.(PubsubClient)
	if !ok {
		return nil
	}
	if r, ok := inner.(subscriptionReporter); ok && !r.SupportsSubscriptions() {
		return nil
	}
	return ps
}
