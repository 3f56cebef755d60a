package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseAddresses parses pool addresses, skipping blanks and repeats.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	return parseList("address", inputs, func(input string) (common.Address, error) {
		if !common.IsHexAddress(input) {
			return common.Address{}, fmt.Errorf("not a 20-byte hex address")
		}
		return common.HexToAddress(input), nil
	})
}

// ParseTopic0 parses event signature hashes, skipping blanks and repeats.
func ParseTopic0(inputs []string) ([]common.Hash, error) {
	return parseList("topic0", inputs, func(input string) (common.Hash, error) {
		data, err := hexutil.Decode(input)
		if err != nil {
			return common.Hash{}, err
		}
		if len(data) != common.HashLength {
			return common.Hash{}, fmt.Errorf("got %d bytes, want %d", len(data), common.HashLength)
		}
		return common.BytesToHash(data), nil
	})
}

func parseList[T comparable](kind string, inputs []string, parse func(string) (T, error)) ([]T, error) {
	out := make([]T, 0, len(inputs))
	seen := make(map[T]struct{}, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		value, err := parse(input)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", kind, input, err)
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out, nil
}
