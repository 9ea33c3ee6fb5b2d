package pooldef

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRequiredStateUnionDedupesSlots(t *testing.T) {
	addr := common.HexToAddress("0x1")
	slotA := common.HexToHash("0x1")
	slotB := common.HexToHash("0x2")

	a := NewRequiredState()
	a.Slots[addr] = []common.Hash{slotA}

	b := NewRequiredState()
	b.Slots[addr] = []common.Hash{slotA, slotB}

	merged := a.Union(b)
	if len(merged.Slots[addr]) != 2 {
		t.Fatalf("expected 2 deduped slots, got %d: %v", len(merged.Slots[addr]), merged.Slots[addr])
	}
}

func TestRequiredStateUnionCombinesCallsAndBalances(t *testing.T) {
	addrA := common.HexToAddress("0x1")
	addrB := common.HexToAddress("0x2")

	a := NewRequiredState()
	a.Calls = append(a.Calls, CallRequest{To: addrA})
	a.Balances = append(a.Balances, addrA)

	b := NewRequiredState()
	b.Calls = append(b.Calls, CallRequest{To: addrB})
	b.Balances = append(b.Balances, addrB)

	merged := a.Union(b)
	if len(merged.Calls) != 2 || len(merged.Balances) != 2 {
		t.Fatalf("expected union of calls/balances, got calls=%d balances=%d", len(merged.Calls), len(merged.Balances))
	}
}

func TestRequiredStateUnionHandlesNil(t *testing.T) {
	var a *RequiredState
	b := NewRequiredState()
	b.Balances = append(b.Balances, common.HexToAddress("0x1"))

	merged := a.Union(b)
	if len(merged.Balances) != 1 {
		t.Fatalf("expected union with nil to return other's contents, got %d", len(merged.Balances))
	}
}
