// Package types holds the data model shared by every paychan package:
// token amounts, account identities, the persisted channel record, client
// configuration and the error taxonomy.
package types

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// KeyPrefix tags textual ed25519 key material, e.g. "ed25519:<base58>".
const KeyPrefix = "ed25519:"

// DefaultProviderURL is the provider endpoint used when none is configured.
const DefaultProviderURL = "http://payperprompt.near.ai"

// Account identifies one party of a channel: an opaque account id plus its
// ed25519 verification key in "ed25519:<base58>" form.
type Account struct {
	AccountID string `json:"account_id" validate:"required"`
	PublicKey string `json:"public_key" validate:"required"`
}

// VerificationKey decodes the account's public key.
func (a Account) VerificationKey() (ed25519.PublicKey, error) {
	raw, err := decodeKey(a.PublicKey)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, &Error{
			Code:    ErrInvalidKey,
			Message: fmt.Sprintf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw)),
		}
	}
	return ed25519.PublicKey(raw), nil
}

// ParseSigningKey decodes an "ed25519:<base58>" secret key. Only the first
// 32 decoded bytes are used, as the seed; NEAR-style keys append the public
// key after the seed.
func ParseSigningKey(s string) (ed25519.PrivateKey, error) {
	raw, err := decodeKey(s)
	if err != nil {
		return nil, err
	}
	if len(raw) < ed25519.SeedSize {
		return nil, &Error{
			Code:    ErrInvalidKey,
			Message: fmt.Sprintf("secret key must carry at least a %d-byte seed, got %d bytes", ed25519.SeedSize, len(raw)),
		}
	}
	return ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]), nil
}

func decodeKey(s string) ([]byte, error) {
	if !strings.HasPrefix(s, KeyPrefix) {
		return nil, &Error{
			Code:    ErrInvalidKey,
			Message: fmt.Sprintf("key must start with %q", KeyPrefix),
		}
	}
	raw := base58.Decode(strings.TrimPrefix(s, KeyPrefix))
	if len(raw) == 0 {
		return nil, &Error{
			Code:    ErrInvalidKey,
			Message: "key is not valid base58",
		}
	}
	return raw, nil
}

// ChannelRecord is the persisted state of one channel as seen by the
// sender. It is a local cache: added_balance and withdrawn_balance are
// owned by the chain, spent_balance is the sender's optimistic cumulative
// spend and may run ahead of what the provider has accepted.
type ChannelRecord struct {
	ChannelID        string  `json:"channel_id" validate:"required"`
	Receiver         Account `json:"receiver" validate:"required"`
	Sender           Account `json:"sender" validate:"required"`
	SenderSecretKey  string  `json:"sender_secret_key" validate:"required"`
	SpentBalance     Token   `json:"spent_balance"`
	AddedBalance     Token   `json:"added_balance"`
	WithdrawnBalance Token   `json:"withdrawn_balance"`
}

// SigningKey decodes the sender's secret key.
func (r *ChannelRecord) SigningKey() (ed25519.PrivateKey, error) {
	return ParseSigningKey(r.SenderSecretKey)
}

// AvailableBalance returns added - spent as the local cache sees it,
// saturating at zero if the cache is ahead of itself.
func (r *ChannelRecord) AvailableBalance() Token {
	available, err := r.AddedBalance.Sub(r.SpentBalance)
	if err != nil {
		return ZeroToken()
	}
	return available
}

// Redacted returns a copy safe for logging and display, with the secret
// key masked.
func (r *ChannelRecord) Redacted() ChannelRecord {
	c := *r
	c.SenderSecretKey = "-- REDACTED --"
	return c
}

// Config carries everything the client needs. The storage base directory
// is threaded explicitly here; nothing in the library reads the home
// directory on its own.
type Config struct {
	// ProviderURL is the base URL of the provider that verifies
	// authorizations and serves the authoritative channel state.
	ProviderURL string `json:"provider_url"`

	// BaseDir is the root of local channel storage; records live under
	// BaseDir/channels/<channel_id>.json.
	BaseDir string `json:"base_dir"`

	// ChannelID selects the channel to operate on. Empty means resolve
	// the single available record from BaseDir.
	ChannelID string `json:"channel_id,omitempty"`

	// Timeout bounds each remote balance query.
	Timeout time.Duration `json:"-"`

	// LogLevel configures the zap logger ("debug", "info", "warn",
	// "error"). Only the CLI consumes it when building its logger; the
	// library itself logs through whatever WithLogger supplies.
	LogLevel string `json:"log_level,omitempty"`
}

// DefaultConfig returns a config pointing at the default provider with
// storage under the user config directory.
func DefaultConfig() Config {
	base := "near_payment_channel"
	if dir, err := os.UserConfigDir(); err == nil {
		base = filepath.Join(dir, "near_payment_channel")
	}
	return Config{
		ProviderURL: DefaultProviderURL,
		BaseDir:     base,
		Timeout:     30 * time.Second,
		LogLevel:    "info",
	}
}
