// Package config holds the typed shape of the topology file the core
// is configured from (spec.md §6, §10.3). Parsing the TOML itself is
// the caller's job (cmd/backrunner); this package only defines and
// validates the decoded shape, grounded directly on
// original_source/crates/topology/src/topology_config.rs.
package config

import "fmt"

// NodeType names the client implementation a ClientConfig connects to.
type NodeType string

const (
	NodeGeth NodeType = "geth"
	NodeReth NodeType = "reth"
)

// TransportType names the RPC transport a ClientConfig uses.
type TransportType string

const (
	TransportWS   TransportType = "ws"
	TransportHTTP TransportType = "http"
	TransportIPC  TransportType = "ipc"
)

// ClientConfig describes one upstream node connection.
type ClientConfig struct {
	URL       string        `toml:"url"`
	Node      NodeType      `toml:"node"`
	Transport TransportType `toml:"transport"`
	DBPath    string        `toml:"db_path"`
}

// Validate checks a ClientConfig's required fields and enum values.
func (c ClientConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("config: client: url is required")
	}
	switch c.Node {
	case NodeGeth, NodeReth, "":
	default:
		return fmt.Errorf("config: client: unknown node type %q", c.Node)
	}
	switch c.Transport {
	case TransportWS, TransportHTTP, TransportIPC, "":
	default:
		return fmt.Errorf("config: client: unknown transport %q", c.Transport)
	}
	return nil
}

// BlockchainConfig names a chain by ID.
type BlockchainConfig struct {
	ChainID int64 `toml:"chain_id"`
}

// SignerConfig is one configured signing key source. Type "env" reads
// the key material from an environment variable named by convention
// after the signer's config key (spec.md §6: `signers[name] = {type:
// env, bc}`).
type SignerConfig struct {
	Type       string `toml:"type"`
	Blockchain string `toml:"bc"`
}

// EncoderConfig is one configured calldata encoder. Type "swapstep" is
// the only kind this module implements (swapenc.SwapStepEncoder).
type EncoderConfig struct {
	Type    string `toml:"type"`
	Address string `toml:"address"`
}

// PreloaderConfig names the client/blockchain/encoder/signers a startup
// preload pass (preload.Preloader) runs against.
type PreloaderConfig struct {
	Client     string `toml:"client"`
	Blockchain string `toml:"bc"`
	Encoder    string `toml:"encoder"`
	Signers    string `toml:"signers"`
}

// BlockchainClientConfig pairs an actor with the blockchain and client
// it should run against; the shape shared by the node, mempool, price
// and noncebalance actor tables.
type BlockchainClientConfig struct {
	Blockchain string `toml:"bc"`
	Client     string `toml:"client"`
}

// PoolsConfig configures the pool-loader actor (market.Market loaders):
// which of the three loader passes (history, new, protocol) to run.
type PoolsConfig struct {
	Blockchain string `toml:"bc"`
	Client     string `toml:"client"`
	History    bool   `toml:"history"`
	New        bool   `toml:"new"`
	Protocol   bool   `toml:"protocol"`
}

// BroadcasterConfig configures a txsign.Broadcaster instance. Type
// "flashbots" is the only kind this module implements.
type BroadcasterConfig struct {
	Type       string `toml:"type"`
	Blockchain string `toml:"bc"`
	Client     string `toml:"client"`
	Smart      bool   `toml:"smart"`
}

// EstimatorConfig configures an estimate.EvmEstimator ("evm") or
// estimate.GethEstimator ("geth") instance.
type EstimatorConfig struct {
	Type       string `toml:"type"`
	Blockchain string `toml:"bc"`
	Client     string `toml:"client"`
	Encoder    string `toml:"encoder"`
}

// ActorConfig groups every per-actor-kind table the topology file
// names, each keyed by an arbitrary instance name.
type ActorConfig struct {
	Broadcaster  map[string]BroadcasterConfig       `toml:"broadcaster"`
	Node         map[string]BlockchainClientConfig  `toml:"node"`
	Mempool      map[string]BlockchainClientConfig  `toml:"mempool"`
	Price        map[string]BlockchainClientConfig  `toml:"price"`
	Pools        map[string]PoolsConfig             `toml:"pools"`
	NonceBalance map[string]BlockchainClientConfig  `toml:"noncebalance"`
	Estimator    map[string]EstimatorConfig         `toml:"estimator"`
}

// InfluxDBConfig is the optional metrics sink (spec.md §6).
type InfluxDBConfig struct {
	URL      string            `toml:"url"`
	Database string            `toml:"database"`
	Tags     map[string]string `toml:"tags"`
}

// TopologyConfig is the full decoded shape of a topology TOML file.
type TopologyConfig struct {
	Clients     map[string]ClientConfig     `toml:"clients"`
	Blockchains map[string]BlockchainConfig `toml:"blockchains"`
	Actors      ActorConfig                 `toml:"actors"`
	Signers     map[string]SignerConfig     `toml:"signers"`
	Encoders    map[string]EncoderConfig    `toml:"encoders"`
	Preloaders  map[string]PreloaderConfig  `toml:"preloaders"`
	InfluxDB    *InfluxDBConfig             `toml:"influxdb"`
}

// Validate checks structural invariants a decoded topology file must
// satisfy before the composer wires any actors: every client entry must
// pass ClientConfig.Validate; the bc and client references of the node,
// mempool, price, noncebalance and pools actor tables, and the encoder
// and signers references of preloaders, must resolve to an entry in the
// corresponding top-level table. Preloaders' client and bc, signers' bc,
// and the broadcaster and estimator tables are not checked here.
func (t *TopologyConfig) Validate() error {
	for name, c := range t.Clients {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("config: clients.%s: %w", name, err)
		}
	}
	for name, c := range t.Actors.Node {
		if err := t.checkBlockchainClient(c); err != nil {
			return fmt.Errorf("config: actors.node.%s: %w", name, err)
		}
	}
	for name, c := range t.Actors.Mempool {
		if err := t.checkBlockchainClient(c); err != nil {
			return fmt.Errorf("config: actors.mempool.%s: %w", name, err)
		}
	}
	for name, c := range t.Actors.Price {
		if err := t.checkBlockchainClient(c); err != nil {
			return fmt.Errorf("config: actors.price.%s: %w", name, err)
		}
	}
	for name, c := range t.Actors.NonceBalance {
		if err := t.checkBlockchainClient(c); err != nil {
			return fmt.Errorf("config: actors.noncebalance.%s: %w", name, err)
		}
	}
	for name, c := range t.Actors.Pools {
		if c.Blockchain != "" {
			if _, ok := t.Blockchains[c.Blockchain]; !ok {
				return fmt.Errorf("config: actors.pools.%s: unknown blockchain %q", name, c.Blockchain)
			}
		}
		if c.Client != "" {
			if _, ok := t.Clients[c.Client]; !ok {
				return fmt.Errorf("config: actors.pools.%s: unknown client %q", name, c.Client)
			}
		}
	}
	for name, c := range t.Preloaders {
		if c.Encoder != "" {
			if _, ok := t.Encoders[c.Encoder]; !ok {
				return fmt.Errorf("config: preloaders.%s: unknown encoder %q", name, c.Encoder)
			}
		}
		if c.Signers != "" {
			if _, ok := t.Signers[c.Signers]; !ok {
				return fmt.Errorf("config: preloaders.%s: unknown signers %q", name, c.Signers)
			}
		}
	}
	return nil
}

func (t *TopologyConfig) checkBlockchainClient(c BlockchainClientConfig) error {
	if c.Blockchain != "" {
		if _, ok := t.Blockchains[c.Blockchain]; !ok {
			return fmt.Errorf("unknown blockchain %q", c.Blockchain)
		}
	}
	if c.Client != "" {
		if _, ok := t.Clients[c.Client]; !ok {
			return fmt.Errorf("unknown client %q", c.Client)
		}
	}
	return nil
}
