package model

// DecodeError records a log that could not be decoded into a typed event.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash,omitempty"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0,omitempty"`
	Data        string `json:"data"`
	Error       string `json:"error"`
}

// NewDecodeError builds a DecodeError record for a log.
func NewDecodeError(chainID uint64, log Log, err error) DecodeError {
	record := DecodeError{
		ChainID:     chainID,
		BlockNumber: log.BlockNumberValue(),
		LogIndex:    log.LogIndexValue(),
		Address:     log.Address.Hex(),
		Data:        log.Data.String(),
	}
	if log.TransactionHash != nil {
		record.TxHash = log.TransactionHash.Hex()
	}
	if len(log.Topics) > 0 {
		record.Topic0 = log.Topics[0].Hex()
	}
	if err != nil {
		record.Error = err.Error()
	}
	return record
}
