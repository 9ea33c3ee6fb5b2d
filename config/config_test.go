package config

import "testing"

func validTopology() *TopologyConfig {
	return &TopologyConfig{
		Clients: map[string]ClientConfig{
			"main": {URL: "ws://localhost:8546", Node: NodeGeth, Transport: TransportWS},
		},
		Blockchains: map[string]BlockchainConfig{
			"mainnet": {ChainID: 1},
		},
		Actors: ActorConfig{
			Node: map[string]BlockchainClientConfig{
				"n1": {Blockchain: "mainnet", Client: "main"},
			},
		},
		Encoders: map[string]EncoderConfig{
			"enc1": {Type: "swapstep", Address: "0xMULTI"},
		},
		Signers: map[string]SignerConfig{
			"sig1": {Type: "env", Blockchain: "mainnet"},
		},
		Preloaders: map[string]PreloaderConfig{
			"pre1": {Client: "main", Blockchain: "mainnet", Encoder: "enc1", Signers: "sig1"},
		},
	}
}

func TestTopologyConfigValidateAccepts(t *testing.T) {
	cfg := validTopology()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestTopologyConfigRejectsClientMissingURL(t *testing.T) {
	cfg := validTopology()
	cfg.Clients["main"] = ClientConfig{Node: NodeGeth}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing client url")
	}
}

func TestTopologyConfigRejectsUnknownBlockchainReference(t *testing.T) {
	cfg := validTopology()
	cfg.Actors.Node["n1"] = BlockchainClientConfig{Blockchain: "doesnotexist", Client: "main"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown blockchain reference")
	}
}

func TestTopologyConfigRejectsUnknownEncoderInPreloader(t *testing.T) {
	cfg := validTopology()
	cfg.Preloaders["pre1"] = PreloaderConfig{Encoder: "missing"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown encoder reference")
	}
}

func TestClientConfigRejectsUnknownNodeType(t *testing.T) {
	c := ClientConfig{URL: "ws://x", Node: "unknown"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown node type")
	}
}
