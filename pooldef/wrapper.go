package pooldef

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Wrapper holds a Pool by reference and gives it address-only identity:
// two wrappers compare equal, hash identically, and order consistently
// based solely on the underlying pool's address, regardless of which
// concrete Pool implementation or instance wraps it (spec.md §4.D,
// mirroring original_source's PoolWrapper Ord/Eq/Hash-by-address).
type Wrapper struct {
	Pool Pool
}

// NewWrapper wraps a Pool.
func NewWrapper(p Pool) Wrapper { return Wrapper{Pool: p} }

// Empty returns a Wrapper around a placeholder EmptyPool for the given
// address.
func Empty(address common.Address) Wrapper {
	return Wrapper{Pool: NewEmptyPool(address)}
}

// Address is a shorthand for Pool.Address(), used as the map/index key
// throughout market and search.
func (w Wrapper) Address() common.Address { return w.Pool.Address() }

// Equal reports address equality, ignoring the concrete Pool instance.
func (w Wrapper) Equal(other Wrapper) bool {
	return w.Pool.Address() == other.Pool.Address()
}

// Less orders wrappers by address, for deterministic iteration (search's
// tie-breaking rules depend on stable ordering, spec.md §4.F).
func (w Wrapper) Less(other Wrapper) bool {
	return bytes.Compare(w.Pool.Address().Bytes(), other.Pool.Address().Bytes()) < 0
}

func (w Wrapper) String() string {
	return fmt.Sprintf("%s@%s", w.Pool.Protocol(), w.Pool.Address())
}
