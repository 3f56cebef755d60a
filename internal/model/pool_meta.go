package model

// PoolMeta is pool metadata attached to typed events. Token0, Token1, Fee and
// TickSpacing never change for a pool; Liquidity and Slot0 are read at the
// event block and are only present when live metadata is requested.
type PoolMeta struct {
	Token0      string     `json:"token0"`
	Token1      string     `json:"token1"`
	Fee         uint32     `json:"fee"`
	TickSpacing int32      `json:"tick_spacing"`
	Liquidity   string     `json:"liquidity,omitempty"`
	Slot0       *PoolSlot0 `json:"slot0,omitempty"`
}

type PoolSlot0 struct {
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
}

// WithLive returns a copy of m with the live fields that are set in live.
func (m PoolMeta) WithLive(live PoolMeta) PoolMeta {
	if live.Liquidity != "" {
		m.Liquidity = live.Liquidity
	}
	if live.Slot0 != nil {
		slot0 := *live.Slot0
		m.Slot0 = &slot0
	}
	return m
}

// TokenMeta is ERC20 metadata. Symbol and Name are empty when the token does
// not expose them.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}
