package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"reflect"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

const (
	testTopic0 = "0x0559884fd3a460db3073b7fc896cc77986f16e378210ded43186175bf646fc5f"
	testTopic1 = "0x0000000000000000000000000000000000000000000000000000000005f46d7d"
	testTopic2 = "0x0000000000000000000000000000000000000000000000000000000000002648"
	testData   = "0x00000000000000000000000000000000000000000000000000000000637b833f"
)

func TestLogToRawLog(t *testing.T) {
	input := `{
		"address": "0x1d244648d5a63618751d006886268ae3550d0dfd",
		"transactionHash": "0x5ba8546f95bd43c4b0f98e2a7dcecdbe7d15c826dac44f4d61d689f6b8e5dbf2",
		"blockHash": "0x3bbb9ebdd1d2c9b33ba572707d43f26f800e50a873c2a1817ff04551f4cce06d",
		"blockNumber": "0xf46d83",
		"transactionIndex": "0x35",
		"logIndex": "0x40",
		"removed": false,
		"topics": ["` + testTopic0 + `","` + testTopic1 + `","` + testTopic2 + `"],
		"data": "` + testData + `"
	}`

	var log Log
	if err := json.Unmarshal([]byte(input), &log); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	raw := log.RawLog()
	if len(raw.Topics) != 3 {
		t.Fatalf("topics length mismatch: %d", len(raw.Topics))
	}
	for i, want := range []string{testTopic0, testTopic1, testTopic2} {
		if raw.Topics[i].Hex() != want {
			t.Fatalf("topic %d mismatch: %s != %s", i, raw.Topics[i].Hex(), want)
		}
	}
	if !bytes.Equal(raw.Data, log.Data) {
		t.Fatalf("data mismatch: %x != %x", raw.Data, []byte(log.Data))
	}
	if hexutil.Encode(raw.Data) != testData {
		t.Fatalf("data hex mismatch: %s", hexutil.Encode(raw.Data))
	}
	if log.BlockNumberValue() != 0xf46d83 || log.LogIndexValue() != 0x40 {
		t.Fatalf("provenance mismatch: %+v", log)
	}
}

func TestRawLogIsIdempotentAndIndependent(t *testing.T) {
	log, err := NewLog(
		common.HexToAddress("0x1d244648d5a63618751d006886268ae3550d0dfd"),
		[]common.Hash{common.HexToHash(testTopic0), common.HexToHash(testTopic1)},
		[]byte{0x00, 0x80, 0xff},
	)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}

	first := log.RawLog()
	second := log.RawLog()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("raw log not stable: %+v != %+v", first, second)
	}
	if !bytes.Equal(first.Data, []byte{0x00, 0x80, 0xff}) {
		t.Fatalf("data bytes changed: %x", first.Data)
	}

	first.Data[0] = 0x01
	first.Topics[0] = common.Hash{}
	if log.Data[0] != 0x00 || log.Topics[0] != common.HexToHash(testTopic0) {
		t.Fatalf("raw log shares memory with the log")
	}
}

func TestLogJSONRoundTrip(t *testing.T) {
	blockHash := common.HexToHash("0x3bbb9ebdd1d2c9b33ba572707d43f26f800e50a873c2a1817ff04551f4cce06d")
	txHash := common.HexToHash("0x5ba8546f95bd43c4b0f98e2a7dcecdbe7d15c826dac44f4d61d689f6b8e5dbf2")
	blockNumber := hexutil.Uint64(16018819)
	txIndex := hexutil.Uint64(53)
	logType := "mined"
	removed := true

	original := Log{
		Address:             common.HexToAddress("0x1d244648d5a63618751d006886268ae3550d0dfd"),
		Topics:              []common.Hash{common.HexToHash(testTopic0), common.HexToHash(testTopic1)},
		Data:                hexutil.MustDecode(testData),
		BlockHash:           &blockHash,
		BlockNumber:         &blockNumber,
		TransactionHash:     &txHash,
		TransactionIndex:    &txIndex,
		LogIndex:            (*hexutil.Big)(big.NewInt(64)),
		TransactionLogIndex: (*hexutil.Big)(big.NewInt(2)),
		LogType:             &logType,
		Removed:             &removed,
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Log
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestPendingLogOmitsProvenance(t *testing.T) {
	log, err := NewLog(common.HexToAddress("0x1111111111111111111111111111111111111111"), nil, nil)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}

	b, err := json.Marshal(log)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(b, &fields); err != nil {
		t.Fatalf("unmarshal map failed: %v", err)
	}
	if len(fields) != 3 {
		t.Fatalf("expected only address/topics/data, got %s", b)
	}
	for _, key := range []string{"blockHash", "blockNumber", "transactionHash", "transactionIndex", "logIndex", "transactionLogIndex", "logType", "removed"} {
		if _, ok := fields[key]; ok {
			t.Fatalf("field %s should be omitted: %s", key, b)
		}
	}
	if strings.Contains(string(b), "null") {
		t.Fatalf("unexpected null in %s", b)
	}

	var decoded Log
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(log, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", log, decoded)
	}
	if !decoded.Pending() {
		t.Fatalf("log without block hash should be pending")
	}
}

func TestLogTopicLimit(t *testing.T) {
	topics := make([]common.Hash, 0, 5)
	for i := 0; i < 5; i++ {
		topics = append(topics, common.BigToHash(big.NewInt(int64(i+1))))
	}

	if _, err := NewLog(common.Address{}, topics[:4], nil); err != nil {
		t.Fatalf("four topics should be valid: %v", err)
	}
	if _, err := NewLog(common.Address{}, topics, nil); !errors.Is(err, ErrTooManyTopics) {
		t.Fatalf("expected ErrTooManyTopics, got %v", err)
	}

	hexTopics := make([]string, 0, len(topics))
	for _, topic := range topics {
		hexTopics = append(hexTopics, `"`+topic.Hex()+`"`)
	}
	input := `{"address":"0x1111111111111111111111111111111111111111","topics":[` + strings.Join(hexTopics, ",") + `],"data":"0x"}`
	var log Log
	if err := json.Unmarshal([]byte(input), &log); !errors.Is(err, ErrTooManyTopics) {
		t.Fatalf("expected ErrTooManyTopics from json, got %v", err)
	}
}

func TestLogJSONMissingRequired(t *testing.T) {
	var log Log
	if err := json.Unmarshal([]byte(`{"topics":[],"data":"0x"}`), &log); err == nil {
		t.Fatalf("expected error for missing address")
	}
	if err := json.Unmarshal([]byte(`{"address":"0x1111111111111111111111111111111111111111","data":"0x"}`), &log); err == nil {
		t.Fatalf("expected error for missing topics")
	}
}

func TestLogRLPEmpty(t *testing.T) {
	log, err := NewLog(common.HexToAddress("0x1111111111111111111111111111111111111111"), nil, nil)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}

	enc, err := rlp.EncodeToBytes(log)
	if err != nil {
		t.Fatalf("rlp encode: %v", err)
	}

	var parts []rlp.RawValue
	if err := rlp.DecodeBytes(enc, &parts); err != nil {
		t.Fatalf("rlp split: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(parts))
	}
	if !bytes.Equal(parts[1], []byte{0xc0}) {
		t.Fatalf("topics should be an empty list: %x", parts[1])
	}
	if !bytes.Equal(parts[2], []byte{0x80}) {
		t.Fatalf("data should be an empty string: %x", parts[2])
	}
}

func TestLogRLPExcludesProvenance(t *testing.T) {
	removed := true
	blockNumber := hexutil.Uint64(99)
	log := Log{
		Address:     common.HexToAddress("0x1d244648d5a63618751d006886268ae3550d0dfd"),
		Topics:      []common.Hash{common.HexToHash(testTopic0)},
		Data:        hexutil.MustDecode(testData),
		BlockNumber: &blockNumber,
		Removed:     &removed,
	}

	enc, err := rlp.EncodeToBytes(log)
	if err != nil {
		t.Fatalf("rlp encode: %v", err)
	}

	// go-ethereum encodes receipt logs with the same three-field layout.
	gethEnc, err := rlp.EncodeToBytes(&types.Log{Address: log.Address, Topics: log.Topics, Data: log.Data})
	if err != nil {
		t.Fatalf("geth rlp encode: %v", err)
	}
	if !bytes.Equal(enc, gethEnc) {
		t.Fatalf("rlp mismatch: %x != %x", enc, gethEnc)
	}

	var decoded Log
	if err := rlp.DecodeBytes(enc, &decoded); err != nil {
		t.Fatalf("rlp decode: %v", err)
	}
	if decoded.BlockNumber != nil || decoded.Removed != nil {
		t.Fatalf("provenance should not survive rlp: %+v", decoded)
	}
	if decoded.Address != log.Address || !reflect.DeepEqual(decoded.Topics, log.Topics) || !bytes.Equal(decoded.Data, log.Data) {
		t.Fatalf("rlp round-trip mismatch: %+v", decoded)
	}
}

func TestFromGethLog(t *testing.T) {
	pending := FromGethLog(types.Log{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:  []common.Hash{common.HexToHash(testTopic0)},
		Data:    []byte{0x01},
	})
	if !pending.Pending() || pending.BlockNumber != nil || pending.LogIndex != nil {
		t.Fatalf("pending log should have no provenance: %+v", pending)
	}

	mined := FromGethLog(types.Log{
		Address:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:      []common.Hash{common.HexToHash(testTopic0)},
		Data:        []byte{0x01},
		BlockNumber: 120,
		BlockHash:   common.HexToHash("0xabc"),
		TxHash:      common.HexToHash("0xdef"),
		TxIndex:     3,
		Index:       7,
		Removed:     true,
	})
	if mined.Pending() || mined.BlockNumberValue() != 120 || mined.LogIndexValue() != 7 || !mined.IsRemoved() {
		t.Fatalf("mined provenance mismatch: %+v", mined)
	}

	back := mined.GethLog()
	if back.BlockNumber != 120 || back.Index != 7 || back.TxIndex != 3 || !back.Removed {
		t.Fatalf("geth conversion mismatch: %+v", back)
	}
}

func TestFromGethLogKeepsRemovedWithoutBlockHash(t *testing.T) {
	retracted := FromGethLog(types.Log{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:  []common.Hash{common.HexToHash(testTopic0)},
		Removed: true,
	})
	if !retracted.IsRemoved() || !retracted.Pending() {
		t.Fatalf("removed flag lost: %+v", retracted)
	}
	if !retracted.GethLog().Removed {
		t.Fatalf("removed flag lost on replay")
	}

	plain := FromGethLog(types.Log{Address: common.HexToAddress("0x1111111111111111111111111111111111111111")})
	if plain.Removed != nil {
		t.Fatalf("pending log should not carry a removed field: %+v", plain)
	}
}
