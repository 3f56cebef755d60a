package model

import "github.com/ethereum/go-ethereum/common"

// RawLog is the decode input of a log: its topics and data, without provenance.
type RawLog struct {
	Topics []common.Hash
	Data   []byte
}

// Topic0 returns the event signature topic if present.
func (r RawLog) Topic0() (common.Hash, bool) {
	if len(r.Topics) == 0 {
		return common.Hash{}, false
	}
	return r.Topics[0], true
}
