package dex

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// v3PoolABIJSON holds the pool events the decoder handles and the view
// methods used for metadata.
const v3PoolABIJSON = `[
{"type":"event","name":"Swap","inputs":[
  {"name":"sender","type":"address","indexed":true},
  {"name":"recipient","type":"address","indexed":true},
  {"name":"amount0","type":"int256"},
  {"name":"amount1","type":"int256"},
  {"name":"sqrtPriceX96","type":"uint160"},
  {"name":"liquidity","type":"uint128"},
  {"name":"tick","type":"int24"}]},
{"type":"event","name":"Mint","inputs":[
  {"name":"sender","type":"address"},
  {"name":"owner","type":"address","indexed":true},
  {"name":"tickLower","type":"int24","indexed":true},
  {"name":"tickUpper","type":"int24","indexed":true},
  {"name":"amount","type":"uint128"},
  {"name":"amount0","type":"uint256"},
  {"name":"amount1","type":"uint256"}]},
{"type":"event","name":"Burn","inputs":[
  {"name":"owner","type":"address","indexed":true},
  {"name":"tickLower","type":"int24","indexed":true},
  {"name":"tickUpper","type":"int24","indexed":true},
  {"name":"amount","type":"uint128"},
  {"name":"amount0","type":"uint256"},
  {"name":"amount1","type":"uint256"}]},
{"type":"event","name":"Collect","inputs":[
  {"name":"owner","type":"address","indexed":true},
  {"name":"recipient","type":"address"},
  {"name":"tickLower","type":"int24","indexed":true},
  {"name":"tickUpper","type":"int24","indexed":true},
  {"name":"amount0","type":"uint128"},
  {"name":"amount1","type":"uint128"}]},
{"type":"function","name":"token0","stateMutability":"view","outputs":[{"type":"address"}]},
{"type":"function","name":"token1","stateMutability":"view","outputs":[{"type":"address"}]},
{"type":"function","name":"fee","stateMutability":"view","outputs":[{"type":"uint24"}]},
{"type":"function","name":"tickSpacing","stateMutability":"view","outputs":[{"type":"int24"}]},
{"type":"function","name":"liquidity","stateMutability":"view","outputs":[{"type":"uint128"}]},
{"type":"function","name":"slot0","stateMutability":"view","outputs":[
  {"name":"sqrtPriceX96","type":"uint160"},
  {"name":"tick","type":"int24"},
  {"name":"observationIndex","type":"uint16"},
  {"name":"observationCardinality","type":"uint16"},
  {"name":"observationCardinalityNext","type":"uint16"},
  {"name":"feeProtocol","type":"uint8"},
  {"name":"unlocked","type":"bool"}]}
]`

// erc20ABITemplate takes the return type of symbol() and name(). Older tokens
// such as MKR return bytes32 instead of string.
const erc20ABITemplate = `[
{"type":"function","name":"decimals","stateMutability":"view","outputs":[{"type":"uint8"}]},
{"type":"function","name":"symbol","stateMutability":"view","outputs":[{"type":"%[1]s"}]},
{"type":"function","name":"name","stateMutability":"view","outputs":[{"type":"%[1]s"}]}
]`

// lazyABI parses its JSON on first use.
type lazyABI struct {
	src    string
	once   sync.Once
	parsed abi.ABI
	err    error
}

func (l *lazyABI) get() (abi.ABI, error) {
	l.once.Do(func() {
		l.parsed, l.err = abi.JSON(strings.NewReader(l.src))
	})
	return l.parsed, l.err
}

var (
	v3PoolABI       = &lazyABI{src: v3PoolABIJSON}
	erc20StringABI  = &lazyABI{src: fmt.Sprintf(erc20ABITemplate, "string")}
	erc20Bytes32ABI = &lazyABI{src: fmt.Sprintf(erc20ABITemplate, "bytes32")}
)

// V3PoolABI returns the parsed V3 pool ABI.
func V3PoolABI() (abi.ABI, error) {
	return v3PoolABI.get()
}
