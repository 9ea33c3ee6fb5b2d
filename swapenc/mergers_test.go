package swapenc

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/eth2030/backrunner/pooldef"
	"github.com/eth2030/backrunner/priceman"
	"github.com/eth2030/backrunner/search"
)

func mkPath(addrs ...common.Address) search.Path {
	p := make(search.Path, len(addrs))
	for i, a := range addrs {
		p[i] = search.Step{Pool: pooldef.Empty(a), From: common.Address{}, To: common.Address{}}
	}
	return p
}

func TestSwapPathMergerKeepsHighestProfitDuplicate(t *testing.T) {
	m := NewSwapPathMerger(3)
	poolA := common.HexToAddress("0xA")
	poolB := common.HexToAddress("0xB")

	c1 := search.Candidate{Path: mkPath(poolA, poolB), InAmount: uint256.NewInt(1), ExpectedProfit: big.NewInt(10)}
	c2 := search.Candidate{Path: mkPath(poolA, poolB), InAmount: uint256.NewInt(2), ExpectedProfit: big.NewInt(50)}

	merged := m.Merge(100, []search.Candidate{c1, c2})
	if len(merged) != 1 {
		t.Fatalf("expected 1 deduplicated swap, got %d", len(merged))
	}
	if merged[0].ExpectedProfit.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected highest-profit instance kept, got %v", merged[0].ExpectedProfit)
	}
}

func TestSwapPathMergerEvictsStaleBlocks(t *testing.T) {
	m := NewSwapPathMerger(1)
	poolA := common.HexToAddress("0xA")

	m.Merge(100, []search.Candidate{{Path: mkPath(poolA), InAmount: uint256.NewInt(1), ExpectedProfit: big.NewInt(5)}})
	out := m.Merge(110, []search.Candidate{{Path: mkPath(common.HexToAddress("0xC")), InAmount: uint256.NewInt(1), ExpectedProfit: big.NewInt(5)}})

	for _, ms := range out {
		if ms.BlockNumber == 100 {
			t.Fatal("expected block-100 candidate evicted once outside the keep window")
		}
	}
}

func TestDiffPathMergerGroupsSharedPrefix(t *testing.T) {
	shared := common.HexToAddress("0xSHARED")
	branchA := common.HexToAddress("0xA")
	branchB := common.HexToAddress("0xB")

	swaps := []MergedSwap{
		{Path: mkPath(shared, branchA), ExpectedProfit: big.NewInt(10)},
		{Path: mkPath(shared, branchB), ExpectedProfit: big.NewInt(20)},
	}

	dm := NewDiffPathMerger()
	branches := dm.Merge(swaps)
	if len(branches) != 1 {
		t.Fatalf("expected 1 branch group, got %d", len(branches))
	}
	if len(branches[0].Prefix) != 1 {
		t.Fatalf("expected shared 1-hop prefix, got %d", len(branches[0].Prefix))
	}
	if len(branches[0].Suffixes) != 2 {
		t.Fatalf("expected 2 divergent suffixes, got %d", len(branches[0].Suffixes))
	}
}

func TestDiffPathMergerPassesThroughUnrelatedPaths(t *testing.T) {
	swaps := []MergedSwap{
		{Path: mkPath(common.HexToAddress("0x1"))},
		{Path: mkPath(common.HexToAddress("0x2"))},
	}
	dm := NewDiffPathMerger()
	branches := dm.Merge(swaps)
	if len(branches) != 2 {
		t.Fatalf("expected 2 independent branches, got %d", len(branches))
	}
	for _, b := range branches {
		if len(b.Prefix) != 0 {
			t.Fatal("expected no shared prefix for unrelated paths")
		}
	}
}

func TestSamePathMergerForksPerTrackedTx(t *testing.T) {
	pool := common.HexToAddress("0xPOOL")
	swap := MergedSwap{Path: mkPath(pool), ExpectedProfit: big.NewInt(10)}

	tracked := []priceman.TrackedTx{
		{Hash: common.HexToHash("0x1"), Tx: types.NewTx(&types.LegacyTx{}), Pool: pool, Seen: time.Now()},
		{Hash: common.HexToHash("0x2"), Tx: types.NewTx(&types.LegacyTx{}), Pool: pool, Seen: time.Now()},
	}

	merger := NewSamePathMerger(func(common.Address) []priceman.TrackedTx { return tracked })
	forks := merger.Fork(swap)

	if len(forks) != 3 { // unforked original + 2 forks
		t.Fatalf("expected 3 entries (original + 2 forks), got %d", len(forks))
	}
	var forkedCount int
	for _, f := range forks {
		if f.ForkOf != nil {
			forkedCount++
		}
	}
	if forkedCount != 2 {
		t.Fatalf("expected 2 forked entries, got %d", forkedCount)
	}
}
