package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"reflect"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"logscope/internal/model"
)

// addrCache is a concurrency-safe map keyed by contract address.
type addrCache[V any] struct {
	mu   sync.RWMutex
	data map[common.Address]V
}

func (c *addrCache[V]) Get(address common.Address) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.data[address]
	return value, ok
}

func (c *addrCache[V]) Set(address common.Address, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[common.Address]V)
	}
	c.data[address] = value
}

// PoolMetaCache holds immutable pool metadata by pool address.
type PoolMetaCache struct {
	addrCache[model.PoolMeta]
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{}
}

// TokenMetaCache holds ERC20 metadata by token address.
type TokenMetaCache struct {
	addrCache[model.TokenMeta]
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{}
}

// view runs a no-argument view method on a contract and unpacks its outputs.
// A nil block means latest.
func view(ctx context.Context, caller ethereum.ContractCaller, contract common.Address, parsed abi.ABI, method string, block *big.Int) ([]interface{}, error) {
	input, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	output, err := caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned nothing", method)
	}
	return values, nil
}

// FetchPoolMeta reads token0, token1, fee and tickSpacing from a pool and
// fills tokenCache for both tokens. Token lookups that fail are logged and
// cached empty so they are not retried for every event.
func FetchPoolMeta(ctx context.Context, caller ethereum.ContractCaller, pool common.Address, tokenCache *TokenMetaCache, logger *zap.Logger) (model.PoolMeta, error) {
	if caller == nil {
		return model.PoolMeta{}, fmt.Errorf("contract caller is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	var (
		token0, token1   common.Address
		fee, tickSpacing *big.Int
	)
	reads := []struct {
		method string
		read   func(interface{}) error
	}{
		{"token0", func(v interface{}) (err error) { token0, err = asAddress(v); return err }},
		{"token1", func(v interface{}) (err error) { token1, err = asAddress(v); return err }},
		{"fee", func(v interface{}) (err error) { fee, err = asBigInt(v); return err }},
		{"tickSpacing", func(v interface{}) (err error) { tickSpacing, err = asBigInt(v); return err }},
	}
	for _, r := range reads {
		values, err := view(ctx, caller, pool, poolABI, r.method, nil)
		if err != nil {
			return model.PoolMeta{}, err
		}
		if err := r.read(values[0]); err != nil {
			return model.PoolMeta{}, fmt.Errorf("%s: %w", r.method, err)
		}
	}

	spacing, err := int24FromBig(tickSpacing)
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("tickSpacing: %w", err)
	}

	if tokenCache != nil {
		for _, token := range []common.Address{token0, token1} {
			if _, ok := tokenCache.Get(token); ok {
				continue
			}
			meta, err := FetchTokenMeta(ctx, caller, token, logger)
			if err != nil {
				logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
			}
			tokenCache.Set(token, meta)
		}
	}

	return model.PoolMeta{
		Token0:      token0.Hex(),
		Token1:      token1.Hex(),
		Fee:         uint32(fee.Uint64()),
		TickSpacing: spacing,
	}, nil
}

// FetchPoolOptionalMeta reads liquidity and slot0 at blockNumber, or at the
// latest block when blockNumber is zero. Failed calls leave the fields empty.
func FetchPoolOptionalMeta(ctx context.Context, caller ethereum.ContractCaller, pool common.Address, blockNumber uint64, logger *zap.Logger) (model.PoolMeta, error) {
	if caller == nil {
		return model.PoolMeta{}, fmt.Errorf("contract caller is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	var block *big.Int
	if blockNumber > 0 {
		block = new(big.Int).SetUint64(blockNumber)
	}

	var meta model.PoolMeta
	if values, err := view(ctx, caller, pool, poolABI, "liquidity", block); err != nil {
		logger.Debug("liquidity call failed", zap.String("pool", pool.Hex()), zap.Error(err))
	} else if liquidity, err := asBigInt(values[0]); err == nil {
		meta.Liquidity = liquidity.String()
	}

	values, err := view(ctx, caller, pool, poolABI, "slot0", block)
	if err != nil {
		logger.Debug("slot0 call failed", zap.String("pool", pool.Hex()), zap.Error(err))
		return meta, nil
	}
	if len(values) < 2 {
		return meta, nil
	}
	sqrtPrice, errPrice := asBigInt(values[0])
	tickValue, errTick := asBigInt(values[1])
	if errPrice != nil || errTick != nil {
		return meta, nil
	}
	if tick, err := int24FromBig(tickValue); err == nil {
		meta.Slot0 = &model.PoolSlot0{SqrtPriceX96: sqrtPrice.String(), Tick: tick}
	}
	return meta, nil
}

// FetchTokenMeta reads decimals, symbol and name from an ERC20 token. Only a
// failed decimals call is an error; symbol and name fall back to bytes32 and
// are left empty if that fails too.
func FetchTokenMeta(ctx context.Context, caller ethereum.ContractCaller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("contract caller is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	stringABI, err := erc20StringABI.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := view(ctx, caller, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, err := asBigInt(values[0])
	if err != nil {
		return meta, fmt.Errorf("decimals: %w", err)
	}
	if !decimals.IsUint64() || decimals.Uint64() > 255 {
		return meta, fmt.Errorf("decimals out of range: %s", decimals)
	}
	meta.Decimals = uint8(decimals.Uint64())

	meta.Symbol = tokenText(ctx, caller, token, "symbol", logger)
	meta.Name = tokenText(ctx, caller, token, "name", logger)
	return meta, nil
}

func tokenText(ctx context.Context, caller ethereum.ContractCaller, token common.Address, method string, logger *zap.Logger) string {
	if parsed, err := erc20StringABI.get(); err == nil {
		if values, err := view(ctx, caller, token, parsed, method, nil); err == nil {
			if text, ok := values[0].(string); ok {
				return text
			}
		}
	}

	parsed, err := erc20Bytes32ABI.get()
	if err != nil {
		return ""
	}
	values, err := view(ctx, caller, token, parsed, method, nil)
	if err != nil {
		logger.Debug(method+" call failed", zap.String("token", token.Hex()), zap.Error(err))
		return ""
	}
	text, _ := bytes32ToString(values[0])
	return text
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

// asBigInt accepts the integer shapes abi.Unpack produces: *big.Int for
// widths above 64 bits and the fixed Go integer types below.
func asBigInt(value interface{}) (*big.Int, error) {
	if v, ok := value.(*big.Int); ok && v != nil {
		return new(big.Int).Set(v), nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), nil
	default:
		return nil, fmt.Errorf("unsupported integer type %T", value)
	}
}

var (
	minInt24 = big.NewInt(-1 << 23)
	maxInt24 = big.NewInt(1<<23 - 1)
)

func int24FromBig(value *big.Int) (int32, error) {
	if value == nil {
		return 0, fmt.Errorf("missing int24 value")
	}
	if value.Cmp(minInt24) < 0 || value.Cmp(maxInt24) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value)
	}
	return int32(value.Int64()), nil
}
