// Package logfile replays JSONL files of wire-format logs as log subscriptions.
package logfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"logscope/internal/model"
)

// InvalidLineFunc is called for lines that are not valid log records.
type InvalidLineFunc func(line int, raw []byte, err error)

// Source reads one log per line and pushes the ones matching a filter query,
// the same way a node would for eth_subscribe("logs"). Logs travel as
// types.Log, so logType, transactionLogIndex and a block number given without
// a block hash do not reach the subscriber.
type Source struct {
	path      string
	onInvalid InvalidLineFunc
	logger    *zap.Logger
}

// NewSource builds a Source for path. onInvalid may be nil.
func NewSource(path string, onInvalid InvalidLineFunc, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{path: path, onInvalid: onInvalid, logger: logger}
}

// SubscribeFilterLogs opens the file and starts delivering matching logs on
// ch. The subscription ends without error at end of file.
func (s *Source) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer file.Close()

		scanner := bufio.NewScanner(file)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 10*1024*1024)

		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var log model.Log
			if err := json.Unmarshal(line, &log); err != nil {
				s.logger.Warn("invalid log line", zap.Int("line", lineNo), zap.Error(err))
				if s.onInvalid != nil {
					s.onInvalid(lineNo, append([]byte(nil), line...), err)
				}
				continue
			}
			if !Matches(log, q) {
				continue
			}

			select {
			case ch <- log.GethLog():
			case <-quit:
				return nil
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("scan input: %w", err)
		}
		return nil
	}), nil
}

// Matches reports whether log satisfies the address, topic and block range
// criteria of q. Pending logs ignore the block range.
func Matches(log model.Log, q ethereum.FilterQuery) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, address := range q.Addresses {
			if address == log.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for i, set := range q.Topics {
		if len(set) == 0 {
			continue
		}
		if i >= len(log.Topics) {
			return false
		}
		found := false
		for _, topic := range set {
			if topic == log.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if !log.Pending() {
		block := log.BlockNumberValue()
		if q.FromBlock != nil && q.FromBlock.Sign() >= 0 && block < q.FromBlock.Uint64() {
			return false
		}
		if q.ToBlock != nil && q.ToBlock.Sign() >= 0 && block > q.ToBlock.Uint64() {
			return false
		}
	}
	return true
}
