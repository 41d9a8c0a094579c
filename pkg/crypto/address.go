// Package crypto derives deterministic deposit-address material.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/denisbrodbeck/machineid"
)

// ErrEmptySecret is returned when no secret is configured and no machine
// fallback is available.
var ErrEmptySecret = errors.New("address secret is empty")

// Network address prefixes, mirroring common on-chain formats closely enough
// for the closed-ledger simulation.
var networkPrefixes = map[string]string{
	"ERC20":  "0x",
	"BEP20":  "0x",
	"TRC20":  "T",
	"SOLANA": "",
}

// AddressDeriver produces deterministic address strings from
// (walletID, network) and a platform secret. The same key always yields the
// same address, which makes allocation naturally idempotent.
type AddressDeriver struct {
	secret []byte
}

// NewAddressDeriver creates a deriver. An empty secret falls back to a
// machine-derived identifier so development setups stay deterministic
// without configuration.
func NewAddressDeriver(secret string) (*AddressDeriver, error) {
	if secret == "" {
		id, err := machineid.ProtectedID("bot-core")
		if err != nil {
			return nil, fmt.Errorf("%w: machine id fallback failed: %v", ErrEmptySecret, err)
		}
		secret = id
	}
	return &AddressDeriver{secret: []byte(secret)}, nil
}

// Derive returns the address for (walletID, network).
func (a *AddressDeriver) Derive(walletID, network string) (string, error) {
	if walletID == "" || network == "" {
		return "", errors.New("wallet id and network are required")
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(walletID))
	mac.Write([]byte("|"))
	mac.Write([]byte(strings.ToUpper(network)))
	digest := mac.Sum(nil)

	prefix, ok := networkPrefixes[strings.ToUpper(network)]
	if !ok {
		prefix = "0x"
	}
	return prefix + hex.EncodeToString(digest[:20]), nil
}
