package model

// PoolPayload is the decoded body of a V3 pool event. Integer amounts wider
// than 64 bits are decimal strings so JSON consumers keep full precision.
type PoolPayload interface {
	EventName() string
}

// NewPoolEvent wraps a payload under its event name.
func NewPoolEvent(payload PoolPayload) PoolEvent {
	return PoolEvent{Name: payload.EventName(), Decoded: payload}
}

type SwapEventData struct {
	Sender       string `json:"sender"`
	Recipient    string `json:"recipient"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Liquidity    string `json:"liquidity"`
	Tick         int32  `json:"tick"`
}

func (SwapEventData) EventName() string { return "Swap" }

// MintEventData is emitted when liquidity is added to [TickLower, TickUpper).
type MintEventData struct {
	Sender    string `json:"sender"`
	Owner     string `json:"owner"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

func (MintEventData) EventName() string { return "Mint" }

type BurnEventData struct {
	Owner     string `json:"owner"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

func (BurnEventData) EventName() string { return "Burn" }

// CollectEventData carries fees withdrawn by a position owner.
type CollectEventData struct {
	Owner     string `json:"owner"`
	Recipient string `json:"recipient"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

func (CollectEventData) EventName() string { return "Collect" }
