package logfile

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"logscope/internal/model"
)

const (
	poolA  = "0x36696169c63e42cd08ce11f5deebbcebae652050"
	poolB  = "0x172fcd41e0913e95784454622d1c3724f546f849"
	topicX = "0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67"
)

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func drain(t *testing.T, src *Source, q ethereum.FilterQuery) []types.Log {
	t.Helper()
	ch := make(chan types.Log)
	sub, err := src.SubscribeFilterLogs(context.Background(), q, ch)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	var got []types.Log
	for {
		select {
		case log := <-ch:
			got = append(got, log)
		case err, ok := <-sub.Err():
			if ok && err != nil {
				t.Fatalf("subscription error: %v", err)
			}
			return got
		}
	}
}

func TestSourceReplaysMatchingLogs(t *testing.T) {
	path := writeInput(t,
		`{"address":"`+poolA+`","topics":["`+topicX+`"],"data":"0x01","blockHash":"0x00000000000000000000000000000000000000000000000000000000000000aa","blockNumber":"0x5","transactionHash":"0x00000000000000000000000000000000000000000000000000000000000000bb","logIndex":"0x2"}`,
		`not json`,
		``,
		`{"address":"`+poolB+`","topics":["`+topicX+`"],"data":"0x02"}`,
		`{"address":"`+poolA+`","topics":[],"data":"0x03"}`,
	)

	var invalid []int
	src := NewSource(path, func(line int, raw []byte, err error) {
		invalid = append(invalid, line)
	}, nil)

	got := drain(t, src, ethereum.FilterQuery{Addresses: []common.Address{common.HexToAddress(poolA)}})
	if len(got) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(got))
	}
	if got[0].BlockNumber != 5 || got[0].Index != 2 || got[0].Data[0] != 0x01 {
		t.Fatalf("first log mismatch: %+v", got[0])
	}
	if got[1].BlockHash != (common.Hash{}) {
		t.Fatalf("pending log should have no block hash")
	}
	if len(invalid) != 1 || invalid[0] != 2 {
		t.Fatalf("invalid lines mismatch: %v", invalid)
	}
}

func TestSourceMissingFile(t *testing.T) {
	src := NewSource(filepath.Join(t.TempDir(), "missing.jsonl"), nil, nil)
	if _, err := src.SubscribeFilterLogs(context.Background(), ethereum.FilterQuery{}, make(chan types.Log)); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestMatches(t *testing.T) {
	mined := model.FromGethLog(types.Log{
		Address:     common.HexToAddress(poolA),
		Topics:      []common.Hash{common.HexToHash(topicX), common.HexToHash("0x01")},
		BlockNumber: 10,
		BlockHash:   common.HexToHash("0xaa"),
	})

	cases := []struct {
		name string
		q    ethereum.FilterQuery
		want bool
	}{
		{"empty", ethereum.FilterQuery{}, true},
		{"address", ethereum.FilterQuery{Addresses: []common.Address{common.HexToAddress(poolB)}}, false},
		{"topic0", ethereum.FilterQuery{Topics: [][]common.Hash{{common.HexToHash(topicX)}}}, true},
		{"wildcard position", ethereum.FilterQuery{Topics: [][]common.Hash{{}, {common.HexToHash("0x01")}}}, true},
		{"topic1 mismatch", ethereum.FilterQuery{Topics: [][]common.Hash{{}, {common.HexToHash("0x02")}}}, false},
		{"too many positions", ethereum.FilterQuery{Topics: [][]common.Hash{{}, {}, {common.HexToHash("0x03")}}}, false},
		{"range", ethereum.FilterQuery{FromBlock: big.NewInt(5), ToBlock: big.NewInt(10)}, true},
		{"before range", ethereum.FilterQuery{FromBlock: big.NewInt(11)}, false},
	}
	for _, tc := range cases {
		if got := Matches(mined, tc.q); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSourceKeepsRemovedFlag(t *testing.T) {
	path := writeInput(t, `{"address":"`+poolA+`","topics":["`+topicX+`"],"data":"0x","removed":true}`)

	got := drain(t, NewSource(path, nil, nil), ethereum.FilterQuery{})
	if len(got) != 1 || !got[0].Removed {
		t.Fatalf("removed flag lost: %+v", got)
	}
	if !model.FromGethLog(got[0]).IsRemoved() {
		t.Fatalf("removed flag lost after conversion")
	}
}
