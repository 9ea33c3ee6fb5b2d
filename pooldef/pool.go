package pooldef

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/backrunner/mirror"
)

// ErrNotImplemented is returned by pool capabilities a concrete
// implementation deliberately leaves unsupported (e.g. EmptyPool, or a
// pool whose protocol cannot compute an exact in-amount).
var ErrNotImplemented = errors.New("pooldef: not implemented")

// PoolClass identifies the broad family of on-chain contract a pool wraps.
type PoolClass int

const (
	ClassUnknown PoolClass = iota
	ClassUniswapV2
	ClassUniswapV3
	ClassCurve
	ClassLidoStEth
	ClassLidoWstEth
	ClassRocketPool
)

// PoolProtocol identifies the specific fork/deployment of a pool class,
// since fee and calldata layout can differ between forks sharing a class.
type PoolProtocol int

const (
	ProtocolUnknown PoolProtocol = iota
	ProtocolUniswapV2
	ProtocolUniswapV2Like
	ProtocolNomiswapStable
	ProtocolSushiswap
	ProtocolSushiswapV3
	ProtocolDooarSwap
	ProtocolSafeswap
	ProtocolMiniswap
	ProtocolShibaswap
	ProtocolUniswapV3
	ProtocolUniswapV3Like
	ProtocolPancakeV3
	ProtocolIntegral
	ProtocolMaverick
	ProtocolCurve
	ProtocolLidoStEth
	ProtocolLidoWstEth
	ProtocolRocketEth
)

func (p PoolProtocol) String() string {
	switch p {
	case ProtocolUniswapV2:
		return "UniswapV2"
	case ProtocolUniswapV2Like:
		return "UniswapV2Like"
	case ProtocolNomiswapStable:
		return "NomiswapStable"
	case ProtocolSushiswap:
		return "Sushiswap"
	case ProtocolSushiswapV3:
		return "SushiswapV3"
	case ProtocolDooarSwap:
		return "Dooarswap"
	case ProtocolSafeswap:
		return "Safeswap"
	case ProtocolMiniswap:
		return "Miniswap"
	case ProtocolShibaswap:
		return "Shibaswap"
	case ProtocolUniswapV3:
		return "UniswapV3"
	case ProtocolUniswapV3Like:
		return "UniswapV3Like"
	case ProtocolPancakeV3:
		return "PancakeV3"
	case ProtocolIntegral:
		return "Integral"
	case ProtocolMaverick:
		return "Maverick"
	case ProtocolCurve:
		return "Curve"
	case ProtocolLidoWstEth:
		return "WstEth"
	case ProtocolLidoStEth:
		return "StEth"
	case ProtocolRocketEth:
		return "RocketEth"
	default:
		return "Unknown"
	}
}

// PreswapRequirement names how a pool expects funds to arrive before a
// swap call (spec.md §4.G: the encoder needs this to decide whether to
// emit a transfer, an approval, or rely on a flash-swap callback).
type PreswapRequirement int

const (
	PreswapUnknown PreswapRequirement = iota
	PreswapTransfer
	PreswapAllowance
	PreswapCallback
	PreswapBase
)

// AbiSwapEncoder supplies the protocol-specific calldata shape for a pool.
// DefaultAbiSwapEncoder answers both Encode methods with ErrNotImplemented
// and every other method with its zero value, so an unmodeled protocol
// degrades to an error instead of a panic.
type AbiSwapEncoder interface {
	EncodeSwapInAmountProvided(tokenFrom, tokenTo common.Address, amount *uint256.Int, recipient common.Address, payload []byte) ([]byte, error)
	EncodeSwapOutAmountProvided(tokenFrom, tokenTo common.Address, amount *uint256.Int, recipient common.Address, payload []byte) ([]byte, error)
	PreswapRequirement() PreswapRequirement
	IsNative() bool
	SwapInAmountOffset(tokenFrom, tokenTo common.Address) (offset uint32, ok bool)
	SwapOutAmountOffset(tokenFrom, tokenTo common.Address) (offset uint32, ok bool)

	// SwapOutAmountReturnOffset names the byte offset, within this leg's
	// return data, of the amount it paid out when given tokenFrom's input
	// amount. A chained multicall reads this word to patch the next leg's
	// input (spec.md §4.G).
	SwapOutAmountReturnOffset(tokenFrom, tokenTo common.Address) (offset uint32, ok bool)
	// SwapInAmountReturnOffset names the byte offset, within this leg's
	// return data, of the amount it pulled in when given tokenTo's desired
	// output amount (the EncodeSwapOutAmountProvided counterpart).
	SwapInAmountReturnOffset(tokenFrom, tokenTo common.Address) (offset uint32, ok bool)
}

// DefaultAbiSwapEncoder is the zero-value AbiSwapEncoder every Pool falls
// back to when it does not implement swap encoding itself.
type DefaultAbiSwapEncoder struct{}

func (DefaultAbiSwapEncoder) EncodeSwapInAmountProvided(common.Address, common.Address, *uint256.Int, common.Address, []byte) ([]byte, error) {
	return nil, ErrNotImplemented
}
func (DefaultAbiSwapEncoder) EncodeSwapOutAmountProvided(common.Address, common.Address, *uint256.Int, common.Address, []byte) ([]byte, error) {
	return nil, ErrNotImplemented
}
func (DefaultAbiSwapEncoder) PreswapRequirement() PreswapRequirement             { return PreswapUnknown }
func (DefaultAbiSwapEncoder) IsNative() bool                                     { return false }
func (DefaultAbiSwapEncoder) SwapInAmountOffset(common.Address, common.Address) (uint32, bool)  { return 0, false }
func (DefaultAbiSwapEncoder) SwapOutAmountOffset(common.Address, common.Address) (uint32, bool) { return 0, false }
func (DefaultAbiSwapEncoder) SwapOutAmountReturnOffset(common.Address, common.Address) (uint32, bool) {
	return 0, false
}
func (DefaultAbiSwapEncoder) SwapInAmountReturnOffset(common.Address, common.Address) (uint32, bool) {
	return 0, false
}

// Pool is the capability every liquidity venue implements: identity, swap
// math against a mirrored MarketState, and the state a loader must
// pre-fetch for it (spec.md §3/§4.D).
type Pool interface {
	Address() common.Address
	Class() PoolClass
	Protocol() PoolProtocol
	Fee() *uint256.Int
	Tokens() []common.Address
	SwapDirections() []TokenPair

	// CalculateOutAmount returns the output amount and a gas estimate for
	// swapping inAmount of tokenFrom into tokenTo, reading reserves from
	// state.
	CalculateOutAmount(state *mirror.MarketState, tokenFrom, tokenTo common.Address, inAmount *uint256.Int) (outAmount *uint256.Int, gasUsed uint64, err error)

	// CalculateInAmount is the inverse of CalculateOutAmount: the input
	// amount needed to receive outAmount.
	CalculateInAmount(state *mirror.MarketState, tokenFrom, tokenTo common.Address, outAmount *uint256.Int) (inAmount *uint256.Int, gasUsed uint64, err error)

	CanFlashSwap() bool
	CanCalculateInAmount() bool

	Encoder() AbiSwapEncoder
	ReadOnlyCells() []common.Hash
	RequiredState() (*RequiredState, error)
}

// TokenPair is a directed (from, to) swap edge a pool supports.
type TokenPair struct {
	From, To common.Address
}

// EmptyPool is a null-object Pool, known only by address: a placeholder
// used when a path step is discovered (e.g. from a creation log) before
// the full pool object has been materialized by a loader (SPEC_FULL §12).
type EmptyPool struct {
	address common.Address
}

// NewEmptyPool wraps an address as a placeholder Pool.
func NewEmptyPool(address common.Address) *EmptyPool {
	return &EmptyPool{address: address}
}

func (p *EmptyPool) Address() common.Address     { return p.address }
func (p *EmptyPool) Class() PoolClass            { return ClassUnknown }
func (p *EmptyPool) Protocol() PoolProtocol      { return ProtocolUnknown }
func (p *EmptyPool) Fee() *uint256.Int           { return uint256.NewInt(0) }
func (p *EmptyPool) Tokens() []common.Address    { return nil }
func (p *EmptyPool) SwapDirections() []TokenPair { return nil }

func (p *EmptyPool) CalculateOutAmount(*mirror.MarketState, common.Address, common.Address, *uint256.Int) (*uint256.Int, uint64, error) {
	return nil, 0, ErrNotImplemented
}

func (p *EmptyPool) CalculateInAmount(*mirror.MarketState, common.Address, common.Address, *uint256.Int) (*uint256.Int, uint64, error) {
	return nil, 0, ErrNotImplemented
}

func (p *EmptyPool) CanFlashSwap() bool        { return false }
func (p *EmptyPool) CanCalculateInAmount() bool { return true }
func (p *EmptyPool) Encoder() AbiSwapEncoder   { return DefaultAbiSwapEncoder{} }
func (p *EmptyPool) ReadOnlyCells() []common.Hash { return nil }
func (p *EmptyPool) RequiredState() (*RequiredState, error) {
	return NewRequiredState(), nil
}
