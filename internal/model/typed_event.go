package model

// PoolEvent is a pool event decoded from topics and data alone.
type PoolEvent struct {
	Name    string      `json:"event_name"`
	Decoded interface{} `json:"decoded"`
}

// TypedEvent is a decoded pool event enriched with provenance and metadata.
// The removed and pending flags are always written; block_hash, tx_hash and
// timestamp are left out for pending logs.
type TypedEvent struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash,omitempty"`
	TxHash      string      `json:"tx_hash,omitempty"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp,omitempty"`
	Removed     bool        `json:"removed"`
	Pending     bool        `json:"pending"`
	Decoded     interface{} `json:"decoded"`
	PoolMeta    *PoolMeta   `json:"pool_meta,omitempty"`
	Raw         *RawLogRef  `json:"raw,omitempty"`
}

// RawLogRef keeps a minimal raw reference for traceability.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}
