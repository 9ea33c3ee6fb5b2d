package composer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/backrunner/actor"
	"github.com/eth2030/backrunner/blockhist"
	"github.com/eth2030/backrunner/config"
	"github.com/eth2030/backrunner/estimate"
	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/log"
	"github.com/eth2030/backrunner/market"
	"github.com/eth2030/backrunner/metrics"
	"github.com/eth2030/backrunner/mirror"
	"github.com/eth2030/backrunner/nonman"
	"github.com/eth2030/backrunner/pooldef"
	"github.com/eth2030/backrunner/preload"
	"github.com/eth2030/backrunner/priceman"
	"github.com/eth2030/backrunner/search"
	"github.com/eth2030/backrunner/swapenc"
	"github.com/eth2030/backrunner/txsign"
)

// knownFlashbotsRelays is the fixed set of public MEV-Boost relay
// endpoints a bundle is fanned out to. original_source's
// FlashbotsBroadcasaterConfig carries no relay-URL field of its own
// (only bc/client/smart), so the relay set is compiled in here rather
// than read from the topology file, matching that shape.
var knownFlashbotsRelays = []string{
	"https://relay.flashbots.net",
	"https://rpc.titanbuilder.xyz",
}

// approximateGasPriceWei stands in for a live base-fee read (see
// orchestrator.go's currentBaseFee) when the composer needs to turn a
// gas estimate into a wei cost before any block has been observed.
var approximateGasPriceWei = big.NewInt(30_000_000_000)

// emptyPoolFactory materializes every discovered pool hit as a
// pooldef.EmptyPool placeholder. Concrete per-protocol AMM math
// (Uniswap V2/V3, Curve, Lido) is out of scope here, so this is as far
// as a topology-driven composer can go; a deployment wanting real swap
// math supplies its own market.PoolFactory built from a protocol plugin
// this module does not define.
type emptyPoolFactory struct{}

func (emptyPoolFactory) Build(_ context.Context, hit market.PoolHit) (pooldef.Pool, error) {
	return pooldef.NewEmptyPool(hit.Address), nil
}

// rpcStateFetcher resolves a pooldef.RequiredState by issuing the
// underlying storage/balance reads against a live provider, implementing
// market.StateFetcher. required.Calls is deliberately left unhandled: a
// raw eth_call return value has no generic mapping into mirrored account
// state without a pool-specific interpretation of its layout, and
// emptyPoolFactory's pools never populate it.
type rpcStateFetcher struct {
	provider ingest.Provider
}

func (f rpcStateFetcher) Fetch(ctx context.Context, required *pooldef.RequiredState) (*ingest.GethStateUpdate, error) {
	diffs := make(map[common.Address]*ingest.AccountDiff)
	get := func(addr common.Address) *ingest.AccountDiff {
		d, ok := diffs[addr]
		if !ok {
			d = &ingest.AccountDiff{Address: addr, Storage: make(map[common.Hash]common.Hash)}
			diffs[addr] = d
		}
		return d
	}

	for addr, slots := range required.Slots {
		d := get(addr)
		for _, slot := range slots {
			val, err := f.provider.StorageAt(ctx, addr, slot, nil)
			if err != nil {
				return nil, fmt.Errorf("composer: storage at %s/%s: %w", addr, slot, err)
			}
			d.Storage[slot] = common.BytesToHash(val)
		}
	}
	for _, addr := range required.Balances {
		d := get(addr)
		bal, err := f.provider.BalanceAt(ctx, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("composer: balance at %s: %w", addr, err)
		}
		d.Balance = bal
	}

	update := &ingest.GethStateUpdate{}
	for _, d := range diffs {
		update.Accounts = append(update.Accounts, *d)
	}
	return update, nil
}

// mirrorApplier is the actor that folds every BlockStateUpdate the
// ingest pipeline produces into the blockchain's mirror, the missing
// link between ingest.BlockStateFetcher's output and mirror.MarketState
// that a fixed-topology deployment would otherwise wire by hand.
type mirrorApplier struct {
	blockchain string
	state      *mirror.MarketState
	in         actor.Consumer[ingest.BlockStateUpdate]
	core       *metrics.Core
}

func (a *mirrorApplier) Name() string { return "composer.mirror_applier." + a.blockchain }

func (a *mirrorApplier) Run(ctx context.Context) error {
	in := a.in.C()
	for {
		select {
		case <-ctx.Done():
			return nil
		case su, ok := <-in:
			if !ok {
				return nil
			}
			if su.StateUpdate != nil {
				a.state.Apply(su.StateUpdate, true, false)
				if a.core != nil {
					a.core.MirrorAccounts.WithLabelValues().Set(float64(a.state.AccountsLen()))
				}
			}
		}
	}
}

// noopHistoryScan satisfies market.ScanFunc without ever finding a pool,
// standing in for the protocol-specific event-signature scan a real
// deployment's PoolFactory package would supply (out of scope here).
func noopHistoryScan(context.Context, uint64) ([]market.PoolHit, error) {
	return nil, nil
}

// singleEntry picks the one entry of a config table this composer
// supports wiring. Every ingest/market/priceman/nonman actor type built
// in this module reports a fixed Name() rather than one parameterized
// per topology instance, so the actor.Runtime can only ever host one
// instance of each kind; a second entry in the same table would collide
// on registration. Rather than silently wiring only one map iteration
// (nondeterministic in Go), this fails loudly and names which table
// needs trimming to one entry.
func singleEntry[V any](table map[string]V, kind string) (string, V, bool, error) {
	var zero V
	if len(table) == 0 {
		return "", zero, false, nil
	}
	if len(table) > 1 {
		keys := make([]string, 0, len(table))
		for k := range table {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", zero, false, fmt.Errorf("composer: actors.%s has %d entries (%v); only one %s instance is supported per runtime", kind, len(table), keys, kind)
	}
	for k, v := range table {
		return k, v, true, nil
	}
	return "", zero, false, nil
}

// sortedKeys returns a config map's keys in a deterministic order, so
// "first entry matching a blockchain" picks consistently across runs.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Compose decodes a validated topology configuration into a fully wired
// actor.Runtime, ready to Run. This plays the role of the teacher's
// node.New, generalized from one fixed node to whatever a topology
// names, within the single-instance-per-actor-kind limit singleEntry
// documents.
// core is the metric set every orchestrator increments into; pass nil to
// run without metrics.
func Compose(cfg *config.TopologyConfig, core *metrics.Core) (*actor.Runtime, error) {
	rt := actor.NewRuntime()
	logger := log.Default().Module("composer")
	ctx := context.Background()

	providers := make(map[string]*ethProvider)
	for _, name := range sortedKeys(cfg.Clients) {
		p, err := dialProvider(ctx, cfg.Clients[name].URL)
		if err != nil {
			return nil, fmt.Errorf("composer: client %s: %w", name, err)
		}
		providers[name] = p
	}

	markets := make(map[string]*market.Market)
	states := make(map[string]*mirror.MarketState)
	marketFor := func(bc string) *market.Market {
		if m, ok := markets[bc]; ok {
			return m
		}
		m := market.NewMarket()
		markets[bc] = m
		return m
	}
	stateFor := func(bc string) *mirror.MarketState {
		if s, ok := states[bc]; ok {
			return s
		}
		s := mirror.NewMarketState(0)
		states[bc] = s
		return s
	}

	var (
		nodeName        string
		nodeBlockchain  string
		nodeBlocksBcast *actor.Broadcaster[ingest.BlockMsg]
		nodeStatesBcast *actor.Broadcaster[ingest.BlockStateUpdate]
		nodeProvider    *ethProvider
	)

	if name, bcc, ok, err := singleEntry(cfg.Actors.Node, "node"); err != nil {
		return nil, err
	} else if ok {
		provider, ok := providers[bcc.Client]
		if !ok {
			return nil, fmt.Errorf("composer: actors.node.%s: unknown client %q", name, bcc.Client)
		}
		nodeName, nodeBlockchain, nodeProvider = name, bcc.Blockchain, provider

		headB := actor.NewBroadcaster[ingest.NewHead](64)
		blockB := actor.NewBroadcaster[ingest.BlockMsg](64)
		stateB := actor.NewBroadcaster[ingest.BlockStateUpdate](64)
		nodeBlocksBcast, nodeStatesBcast = blockB, stateB

		headSub := ingest.NewNewHeadSubscriber(provider, headB.Producer())
		if err := rt.Register(headSub); err != nil {
			return nil, err
		}

		blockIn, err := headB.Subscribe()
		if err != nil {
			return nil, err
		}
		blockFetcher := ingest.NewBlockFetcher(provider, blockIn, blockB.Producer())
		if err := rt.Register(blockFetcher, headSub.Name()); err != nil {
			return nil, err
		}

		stateIn, err := headB.Subscribe()
		if err != nil {
			return nil, err
		}
		stateFetcher := ingest.NewBlockStateFetcher(provider, stateIn, stateB.Producer())
		if err := rt.Register(stateFetcher, headSub.Name()); err != nil {
			return nil, err
		}

		hist := blockhist.NewHistory(256)
		writerHeads, err := headB.Subscribe()
		if err != nil {
			return nil, err
		}
		writerBlocks, err := blockB.Subscribe()
		if err != nil {
			return nil, err
		}
		writerStates, err := stateB.Subscribe()
		if err != nil {
			return nil, err
		}
		writer := blockhist.NewWriter(hist, writerHeads, writerBlocks, writerStates)
		if err := rt.Register(writer, headSub.Name(), blockFetcher.Name(), stateFetcher.Name()); err != nil {
			return nil, err
		}

		applierIn, err := stateB.Subscribe()
		if err != nil {
			return nil, err
		}
		applier := &mirrorApplier{blockchain: bcc.Blockchain, state: stateFor(bcc.Blockchain), in: applierIn, core: core}
		if err := rt.Register(applier, stateFetcher.Name()); err != nil {
			return nil, err
		}
	}

	var (
		mempoolBlockchain string
		stuffingMonitor   *priceman.StuffingMonitor
	)
	if name, mc, ok, err := singleEntry(cfg.Actors.Mempool, "mempool"); err != nil {
		return nil, err
	} else if ok {
		provider, ok := providers[mc.Client]
		if !ok {
			return nil, fmt.Errorf("composer: actors.mempool.%s: unknown client %q", name, mc.Client)
		}
		mempoolBlockchain = mc.Blockchain
		pendB := actor.NewBroadcaster[ingest.PendingTx](256)
		sub := ingest.NewMempoolSubscriber(provider, pendB.Producer(), 50, 100, 0)
		if err := rt.Register(sub); err != nil {
			return nil, err
		}

		stuffingIn, err := pendB.Subscribe()
		if err != nil {
			return nil, err
		}
		m := marketFor(mc.Blockchain)
		targets := func() []common.Address {
			pools := m.Pools()
			out := make([]common.Address, len(pools))
			for i, w := range pools {
				out[i] = w.Address()
			}
			return out
		}
		stuffingMonitor = priceman.NewStuffingMonitor(targets, stuffingIn)
		if err := rt.Register(stuffingMonitor, sub.Name()); err != nil {
			return nil, err
		}
	}

	if name, pc, ok, err := singleEntry(cfg.Actors.Pools, "pools"); err != nil {
		return nil, err
	} else if ok {
		provider, ok := providers[pc.Client]
		if !ok {
			return nil, fmt.Errorf("composer: actors.pools.%s: unknown client %q", name, pc.Client)
		}
		handler := market.NewHandler(emptyPoolFactory{}, rpcStateFetcher{provider: provider}, marketFor(pc.Blockchain), stateFor(pc.Blockchain))

		if pc.History {
			loader := market.NewHistoryLoader(noopHistoryScan, handler, 256)
			if err := rt.Register(loader); err != nil {
				return nil, err
			}
		}
		if pc.Protocol {
			// Lido/RocketPool/Curve-registry singleton discovery is
			// protocol-specific enumeration out of scope here; the
			// loader runs with an empty singleton list, a deployment
			// supplies its own list via a wrapped PoolFactory.
			loader := market.NewProtocolLoader(nil, handler)
			if err := rt.Register(loader); err != nil {
				return nil, err
			}
		}
		if pc.New {
			logger.Warn("actors.pools.new is not wired: NewPoolLoader needs a live new-head feed tied to a specific node instance and a log scanner this module does not implement", "pools", name)
		}
	}

	poolHealth := make(map[string]*priceman.PoolHealthMonitor)
	if name, pc, ok, err := singleEntry(cfg.Actors.Price, "price"); err != nil {
		return nil, err
	} else if ok {
		provider, ok := providers[pc.Client]
		if !ok {
			return nil, fmt.Errorf("composer: actors.price.%s: unknown client %q", name, pc.Client)
		}
		m := marketFor(pc.Blockchain)
		st := stateFor(pc.Blockchain)

		healthMon := priceman.NewPoolHealthMonitor(m, st, 30*time.Second, 3, core)
		if err := rt.Register(healthMon); err != nil {
			return nil, err
		}
		poolHealth[pc.Blockchain] = healthMon

		sample := func() []common.Address {
			pools := m.Pools()
			out := make([]common.Address, len(pools))
			for i, w := range pools {
				out[i] = w.Address()
			}
			return out
		}
		stateMon := priceman.NewStateHealthMonitor(provider, st, sample, time.Minute, func(d priceman.Drift) {
			logger.Warn("state drift detected", "address", d.Address, "mirror", d.Mirror, "chain", d.Chain)
		})
		if err := rt.Register(stateMon); err != nil {
			return nil, err
		}
	}

	// Signers: decode every configured key set first so a shared
	// nonman.State can be built per blockchain (nonman.NewState fixes
	// its tracked-address set at construction time).
	type decodedSigner struct {
		blockchain string
		keys       []*ecdsa.PrivateKey
	}
	decoded := make(map[string]decodedSigner)
	addrsByChain := make(map[string][]common.Address)
	for _, name := range sortedKeys(cfg.Signers) {
		sc := cfg.Signers[name]
		keys, err := loadSignerKeys(name, sc)
		if err != nil {
			return nil, err
		}
		decoded[name] = decodedSigner{blockchain: sc.Blockchain, keys: keys}
		addrsByChain[sc.Blockchain] = append(addrsByChain[sc.Blockchain], addressesOf(keys)...)
	}

	nonStates := make(map[string]*nonman.State)
	for bc, addrs := range addrsByChain {
		nonStates[bc] = nonman.NewState(addrs)
	}
	if nodeProvider != nil {
		if st, ok := nonStates[nodeBlockchain]; ok {
			if err := rt.Register(nonman.NewFetcher(nodeProvider, st, 0)); err != nil {
				return nil, err
			}
		}
	}

	multicallerForSigner := func(signerName string) common.Address {
		for _, pname := range sortedKeys(cfg.Preloaders) {
			pc := cfg.Preloaders[pname]
			if pc.Signers == signerName {
				if enc, ok := cfg.Encoders[pc.Encoder]; ok {
					return common.HexToAddress(enc.Address)
				}
			}
		}
		return common.Address{}
	}

	signers := make(map[string]*txsign.Signer)
	for _, name := range sortedKeys(decoded) {
		d := decoded[name]
		bcCfg, ok := cfg.Blockchains[d.blockchain]
		if !ok {
			return nil, fmt.Errorf("composer: signers.%s: unknown blockchain %q", name, d.blockchain)
		}
		signers[name] = txsign.NewSigner(d.keys, big.NewInt(bcCfg.ChainID), nonStates[d.blockchain], multicallerForSigner(name))
	}

	if name, nb, ok, err := singleEntry(cfg.Actors.NonceBalance, "noncebalance"); err != nil {
		return nil, err
	} else if ok {
		st, hasState := nonStates[nb.Blockchain]
		switch {
		case !hasState:
			logger.Warn("actors.noncebalance has no signers for its blockchain, skipping", "name", name, "bc", nb.Blockchain)
		case nodeBlocksBcast == nil || nb.Blockchain != nodeBlockchain:
			logger.Warn("actors.noncebalance's blockchain has no matching node block feed, skipping", "name", name, "bc", nb.Blockchain)
		default:
			bcCfg := cfg.Blockchains[nb.Blockchain]
			blocksIn, err := nodeBlocksBcast.Subscribe()
			if err != nil {
				return nil, err
			}
			monitor := nonman.NewMonitor(st, big.NewInt(bcCfg.ChainID), blocksIn)
			if err := rt.Register(monitor); err != nil {
				return nil, err
			}
		}
	}

	gethEstimators := make(map[string]*estimate.GethEstimator)
	estimatorEncoder := make(map[string]string)
	estimatorBlockchain := make(map[string]string)
	for _, name := range sortedKeys(cfg.Actors.Estimator) {
		ec := cfg.Actors.Estimator[name]
		switch ec.Type {
		case "geth":
			provider, ok := providers[ec.Client]
			if !ok {
				return nil, fmt.Errorf("composer: actors.estimator.%s: unknown client %q", name, ec.Client)
			}
			enc, ok := cfg.Encoders[ec.Encoder]
			if !ok {
				return nil, fmt.Errorf("composer: actors.estimator.%s: unknown encoder %q", name, ec.Encoder)
			}
			target := common.HexToAddress(enc.Address)
			gethEstimators[name] = estimate.NewGethEstimator(provider, estimate.DefaultTipPolicy(), func(swapenc.MergedSwap) ingest.CallMsg {
				return ingest.CallMsg{To: &target}
			})
			estimatorEncoder[name] = ec.Encoder
			estimatorBlockchain[name] = ec.Blockchain
		case "evm":
			logger.Warn("actors.estimator has an evm entry, skipping: no in-module EVM simulator implements estimate.Simulator", "name", name)
		default:
			return nil, fmt.Errorf("composer: actors.estimator.%s: unknown type %q", name, ec.Type)
		}
	}

	broadcasters := make(map[string]*txsign.Broadcaster)
	broadcasterBlockchain := make(map[string]string)
	for _, name := range sortedKeys(cfg.Actors.Broadcaster) {
		bcfg := cfg.Actors.Broadcaster[name]
		if bcfg.Type != "flashbots" {
			return nil, fmt.Errorf("composer: actors.broadcaster.%s: unknown type %q", name, bcfg.Type)
		}
		key, err := loadRelayKey(name)
		if err != nil {
			return nil, err
		}
		relays := make([]txsign.Relay, len(knownFlashbotsRelays))
		for i, url := range knownFlashbotsRelays {
			relays[i] = newFlashbotsRelay(fmt.Sprintf("%s-%d", name, i), url, key)
		}
		broadcasters[name] = txsign.NewBroadcaster(relays)
		broadcasterBlockchain[name] = bcfg.Blockchain
	}

	for _, name := range sortedKeys(cfg.Preloaders) {
		pc := cfg.Preloaders[name]
		provider, ok := providers[pc.Client]
		if !ok {
			return nil, fmt.Errorf("composer: preloaders.%s: unknown client %q", name, pc.Client)
		}
		enc, ok := cfg.Encoders[pc.Encoder]
		if !ok {
			return nil, fmt.Errorf("composer: preloaders.%s: unknown encoder %q", name, pc.Encoder)
		}
		var signer *txsign.Signer
		if pc.Signers != "" {
			signer, ok = signers[pc.Signers]
			if !ok {
				return nil, fmt.Errorf("composer: preloaders.%s: unknown signers %q", name, pc.Signers)
			}
		}
		pre := preload.NewPreloader(provider, stateFor(pc.Blockchain), preload.QuoterSeed{}, common.HexToAddress(enc.Address), signer)
		if err := pre.Run(ctx); err != nil {
			return nil, fmt.Errorf("composer: preloaders.%s: %w", name, err)
		}
	}

	if nodeName != "" {
		var (
			estimatorName string
			estimator     *estimate.GethEstimator
		)
		for _, name := range sortedKeys(gethEstimators) {
			if estimatorBlockchain[name] == nodeBlockchain {
				estimatorName, estimator = name, gethEstimators[name]
				break
			}
		}
		var signer *txsign.Signer
		for _, name := range sortedKeys(decoded) {
			if decoded[name].blockchain == nodeBlockchain {
				signer = signers[name]
				break
			}
		}
		var broadcaster *txsign.Broadcaster
		for _, name := range sortedKeys(broadcasterBlockchain) {
			if broadcasterBlockchain[name] == nodeBlockchain {
				broadcaster = broadcasters[name]
				break
			}
		}

		if estimator == nil || signer == nil || broadcaster == nil {
			logger.Warn("skipping orchestrator: missing estimator/signer/broadcaster for node's blockchain", "node", nodeName, "bc", nodeBlockchain)
		} else {
			enc := cfg.Encoders[estimatorEncoder[estimatorName]]
			multicaller := common.HexToAddress(enc.Address)

			m := marketFor(nodeBlockchain)
			st := stateFor(nodeBlockchain)

			var disabled search.IsDisabled = func(common.Address) bool { return false }
			if hm, ok := poolHealth[nodeBlockchain]; ok {
				disabled = hm.IsDisabled
			}
			gasCost := func(_ search.Path, gas uint64) *big.Int {
				return new(big.Int).Mul(approximateGasPriceWei, new(big.Int).SetUint64(gas))
			}

			searcher := search.NewSearcher(m, common.Address{}, disabled, gasCost, big.NewInt(0))
			pathMerger := swapenc.NewSwapPathMerger(3)
			encoder := swapenc.NewSwapStepEncoder(multicaller)

			var sameMerger *swapenc.SamePathMerger
			if stuffingMonitor != nil && mempoolBlockchain == nodeBlockchain {
				sameMerger = swapenc.NewSamePathMerger(stuffingMonitor.Tracked)
			}

			blocksIn, err := nodeBlocksBcast.Subscribe()
			if err != nil {
				return nil, err
			}
			statesIn, err := nodeStatesBcast.Subscribe()
			if err != nil {
				return nil, err
			}

			orc := newOrchestrator(nodeName, m, st, searcher, pathMerger, sameMerger, encoder, estimator, signer, broadcaster, blocksIn, statesIn, core)
			if err := rt.Register(orc); err != nil {
				return nil, err
			}
		}
	}

	return rt, nil
}
