package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// MaxTopics is the maximum number of topics a log can carry (LOG0..LOG4).
const MaxTopics = 4

// ErrTooManyTopics is returned when a log carries more than MaxTopics topics.
var ErrTooManyTopics = errors.New("log has more than 4 topics")

// Log is a raw event log as delivered by a node.
//
// Provenance fields are optional because pending logs carry none of them.
// Absent fields are omitted from the JSON encoding.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`

	BlockHash           *common.Hash    `json:"blockHash,omitempty"`
	BlockNumber         *hexutil.Uint64 `json:"blockNumber,omitempty"`
	TransactionHash     *common.Hash    `json:"transactionHash,omitempty"`
	TransactionIndex    *hexutil.Uint64 `json:"transactionIndex,omitempty"`
	LogIndex            *hexutil.Big    `json:"logIndex,omitempty"`
	TransactionLogIndex *hexutil.Big    `json:"transactionLogIndex,omitempty"`
	LogType             *string         `json:"logType,omitempty"`
	Removed             *bool           `json:"removed,omitempty"`
}

// NewLog builds a log without provenance and validates it.
func NewLog(address common.Address, topics []common.Hash, data []byte) (Log, error) {
	l := Log{
		Address: address,
		Topics:  append([]common.Hash{}, topics...),
		Data:    append(hexutil.Bytes{}, data...),
	}
	if err := l.Validate(); err != nil {
		return Log{}, err
	}
	return l, nil
}

// Validate checks structural invariants of the log.
func (l Log) Validate() error {
	if len(l.Topics) > MaxTopics {
		return fmt.Errorf("%w: got %d", ErrTooManyTopics, len(l.Topics))
	}
	return nil
}

// Pending reports whether the log has not been mined yet.
func (l Log) Pending() bool {
	return l.BlockHash == nil
}

// RawLog reduces the log to the topics and data used for decoding.
func (l Log) RawLog() RawLog {
	return RawLog{
		Topics: append([]common.Hash{}, l.Topics...),
		Data:   append([]byte{}, l.Data...),
	}
}

// MarshalJSON encodes the log in its wire form.
func (l Log) MarshalJSON() ([]byte, error) {
	type Alias Log
	a := Alias(l)
	if a.Topics == nil {
		a.Topics = []common.Hash{}
	}
	return json.Marshal(a)
}

// UnmarshalJSON decodes the wire form and rejects logs with more than four topics.
func (l *Log) UnmarshalJSON(data []byte) error {
	type Alias Log
	var dec struct {
		Address *common.Address `json:"address"`
		Topics  *[]common.Hash  `json:"topics"`
		*Alias
	}
	var a Alias
	dec.Alias = &a
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	if dec.Address == nil {
		return errors.New("missing required field 'address' for Log")
	}
	if dec.Topics == nil {
		return errors.New("missing required field 'topics' for Log")
	}
	a.Address = *dec.Address
	a.Topics = *dec.Topics
	if a.Data == nil {
		a.Data = hexutil.Bytes{}
	}
	out := Log(a)
	if err := out.Validate(); err != nil {
		return err
	}
	*l = out
	return nil
}

type rlpLog struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// EncodeRLP writes the consensus encoding [address, topics, data].
func (l Log) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, rlpLog{Address: l.Address, Topics: l.Topics, Data: l.Data})
}

// DecodeRLP reads the consensus encoding. Provenance fields are left unset.
func (l *Log) DecodeRLP(s *rlp.Stream) error {
	var dec rlpLog
	if err := s.Decode(&dec); err != nil {
		return err
	}
	out, err := NewLog(dec.Address, dec.Topics, dec.Data)
	if err != nil {
		return err
	}
	*l = out
	return nil
}

// FromGethLog converts a go-ethereum log. Logs with a zero block hash are
// treated as pending and carry no provenance other than a set removed flag.
//
// types.Log has no logType or transactionLogIndex and cannot mark a block
// number as known without a block hash, so Log -> GethLog -> FromGethLog
// drops those fields.
func FromGethLog(gl types.Log) Log {
	l := Log{
		Address: gl.Address,
		Topics:  append([]common.Hash{}, gl.Topics...),
		Data:    append(hexutil.Bytes{}, gl.Data...),
	}
	if gl.BlockHash == (common.Hash{}) {
		if gl.Removed {
			removed := true
			l.Removed = &removed
		}
		return l
	}

	blockHash := gl.BlockHash
	blockNumber := hexutil.Uint64(gl.BlockNumber)
	txHash := gl.TxHash
	txIndex := hexutil.Uint64(gl.TxIndex)
	logIndex := (*hexutil.Big)(new(big.Int).SetUint64(uint64(gl.Index)))
	removed := gl.Removed

	l.BlockHash = &blockHash
	l.BlockNumber = &blockNumber
	l.TransactionHash = &txHash
	l.TransactionIndex = &txIndex
	l.LogIndex = logIndex
	l.Removed = &removed
	return l
}

// GethLog converts the log to the go-ethereum representation. Missing
// provenance maps to zero values; logType and transactionLogIndex have no
// counterpart and are dropped.
func (l Log) GethLog() types.Log {
	gl := types.Log{
		Address: l.Address,
		Topics:  append([]common.Hash{}, l.Topics...),
		Data:    append([]byte{}, l.Data...),
	}
	if l.BlockHash != nil {
		gl.BlockHash = *l.BlockHash
	}
	if l.BlockNumber != nil {
		gl.BlockNumber = uint64(*l.BlockNumber)
	}
	if l.TransactionHash != nil {
		gl.TxHash = *l.TransactionHash
	}
	if l.TransactionIndex != nil {
		gl.TxIndex = uint(*l.TransactionIndex)
	}
	if l.LogIndex != nil {
		gl.Index = uint(l.LogIndex.ToInt().Uint64())
	}
	if l.Removed != nil {
		gl.Removed = *l.Removed
	}
	return gl
}

// BlockNumberValue returns the block number or zero for pending logs.
func (l Log) BlockNumberValue() uint64 {
	if l.BlockNumber == nil {
		return 0
	}
	return uint64(*l.BlockNumber)
}

// LogIndexValue returns the log index or zero for pending logs.
func (l Log) LogIndexValue() uint64 {
	if l.LogIndex == nil {
		return 0
	}
	return l.LogIndex.ToInt().Uint64()
}

// IsRemoved reports whether the log was invalidated by a reorg.
func (l Log) IsRemoved() bool {
	return l.Removed != nil && *l.Removed
}
