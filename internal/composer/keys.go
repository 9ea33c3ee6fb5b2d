package composer

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/eth2030/backrunner/config"
)

// envKeysVar derives the environment variable a "type: env" SignerConfig
// entry reads its key material from: the config key name upper-cased and
// prefixed, so a topology's [signers.sig1] resolves to
// BACKRUNNER_SIGNER_SIG1_KEYS (spec.md §4.I: "initialized once from an
// encrypted blob external to this package"; an env var is this module's
// stand-in for that external decryption step, since no KMS/keystore
// dependency appears anywhere in the example corpus).
func envKeysVar(name string) string {
	return "BACKRUNNER_SIGNER_" + strings.ToUpper(name) + "_KEYS"
}

// loadSignerKeys resolves a signer's key material. Only SignerConfig.Type
// == "env" is implemented, matching original_source's SignersConfig::Env
// variant (spec.md §6, §10.3).
func loadSignerKeys(name string, cfg config.SignerConfig) ([]*ecdsa.PrivateKey, error) {
	if cfg.Type != "env" {
		return nil, fmt.Errorf("composer: signer %s: unsupported type %q", name, cfg.Type)
	}

	raw := os.Getenv(envKeysVar(name))
	if raw == "" {
		return nil, fmt.Errorf("composer: signer %s: %s is unset or empty", name, envKeysVar(name))
	}

	var keys []*ecdsa.PrivateKey
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, err := crypto.HexToECDSA(strings.TrimPrefix(field, "0x"))
		if err != nil {
			return nil, fmt.Errorf("composer: signer %s: invalid key: %w", name, err)
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("composer: signer %s: %s contained no keys", name, envKeysVar(name))
	}
	return keys, nil
}

// loadRelayKey resolves the reputation key a flashbots broadcaster entry
// signs its relay requests with, from BACKRUNNER_RELAY_<NAME>_KEY.
// BroadcasterConfig carries no key-source "type" field the way
// SignerConfig does (there is only one relay-protocol kind implemented),
// so this reads the environment directly rather than branching on a
// config value.
func loadRelayKey(name string) (*ecdsa.PrivateKey, error) {
	envVar := "BACKRUNNER_RELAY_" + strings.ToUpper(name) + "_KEY"
	raw := strings.TrimSpace(os.Getenv(envVar))
	if raw == "" {
		return nil, fmt.Errorf("composer: broadcaster %s: %s is unset or empty", name, envVar)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("composer: broadcaster %s: invalid key: %w", name, err)
	}
	return key, nil
}

func addressesOf(keys []*ecdsa.PrivateKey) []common.Address {
	out := make([]common.Address, len(keys))
	for i, k := range keys {
		out[i] = crypto.PubkeyToAddress(k.PublicKey)
	}
	return out
}
