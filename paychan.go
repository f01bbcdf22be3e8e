// Package paychan implements the sender side of a unidirectional off-chain
// payment channel: it spends from a pre-funded channel by producing
// detached-signed authorizations over a canonical encoding of channel
// state, carried to the provider as a base64 transport header.
//
// Two ledgers are in play and they are reconciled asymmetrically, on
// purpose. MakeAuthorization checks and advances the locally cached
// record, an optimistic upper bound that the provider re-validates on
// every request. Balance and SpentRemote bypass the cache entirely and
// report the provider's authoritative ledger. Callers needing strict
// consistency query the remote state before authorizing.
package paychan

import (
	"context"
	"fmt"
	"time"

	"github.com/vitwit/paychan/logger"
	"github.com/vitwit/paychan/metrics"
	"github.com/vitwit/paychan/oracle"
	"github.com/vitwit/paychan/state"
	"github.com/vitwit/paychan/store"
	"github.com/vitwit/paychan/types"
)

// Client spends from one payment channel. It holds configuration only;
// all durable state lives in the store, and the provider owns the
// authoritative balances.
type Client struct {
	cfg     types.Config
	store   store.Store
	oracle  oracle.BalanceOracle
	log     logger.Logger
	rec     metrics.Recorder
	timeout time.Duration

	channelID string
}

// New creates a Client for the given configuration. Zero-valued config
// fields fall back to DefaultConfig; the store and oracle default to the
// file store under cfg.BaseDir and the HTTP oracle at cfg.ProviderURL.
func New(cfg types.Config, opts ...Option) *Client {
	def := types.DefaultConfig()
	if cfg.ProviderURL == "" {
		cfg.ProviderURL = def.ProviderURL
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = def.BaseDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	c := &Client{
		cfg:     cfg,
		log:     logger.NoopLogger{},
		rec:     metrics.NoopRecorder{},
		timeout: cfg.Timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = store.NewFileStore(cfg.BaseDir, c.log)
	}
	if c.oracle == nil {
		c.oracle = oracle.NewHTTPOracle(cfg.ProviderURL, c.log, c.rec)
	}
	return c
}

// channel resolves the channel id: the configured one, or the single
// record available in the store. The resolution is cached.
func (c *Client) channel() (string, error) {
	if c.channelID != "" {
		return c.channelID, nil
	}
	if c.cfg.ChannelID != "" {
		c.channelID = c.cfg.ChannelID
		return c.channelID, nil
	}
	id, err := c.store.SelectOnly()
	if err != nil {
		return "", err
	}
	c.channelID = id
	return id, nil
}

// MakeAuthorization authorizes spending amount (display units) on top of
// the current cumulative spend and returns the transport-header value
// carrying the signed payload. The new cumulative spend is validated
// against the locally cached ceiling; equality with the ceiling is
// allowed. With persist set, the advanced spend becomes the local baseline
// for future calls whether or not the provider ends up accepting it. The
// persist is conditional: if another writer advanced the record between
// this call's load and its write, the store reports CONCURRENT_UPDATE and
// the caller must reload and re-authorize instead of overwriting the
// newer spend.
func (c *Client) MakeAuthorization(amount string, persist bool) (string, error) {
	amt, err := types.ParseDisplay(amount)
	if err != nil {
		return "", err
	}

	id, err := c.channel()
	if err != nil {
		return "", err
	}
	labels := map[string]string{"channel": id}
	start := time.Now()

	rec, err := c.store.Load(id)
	if err != nil {
		return "", err
	}

	prior := rec.SpentBalance
	candidate := prior.Add(amt)
	if rec.AddedBalance.LessThan(candidate) {
		c.rec.IncCounter("authorize_rejected", labels)
		return "", &types.Error{
			Code: types.ErrInsufficientBalance,
			Message: fmt.Sprintf("spending %s exceeds the channel ceiling: available %s",
				amt.Display(), rec.AvailableBalance().Display()),
		}
	}
	rec.SpentBalance = candidate

	encoded, err := state.Encode(id, candidate)
	if err != nil {
		return "", err
	}
	key, err := rec.SigningKey()
	if err != nil {
		return "", err
	}
	payload := state.BuildPayload(encoded, state.Sign(encoded, key))

	if persist {
		if err := c.store.PersistSpent(id, prior, candidate); err != nil {
			return "", err
		}
	}

	c.rec.IncCounter("authorize", labels)
	c.rec.ObserveLatency("authorize", time.Since(start), labels)
	c.log.Info("authorization created", logger.Fields{
		"channel":   id,
		"amount":    amt.String(),
		"new_spent": candidate.String(),
		"persisted": persist,
	})
	return state.HeaderValue(payload), nil
}

// AuthorizationHeader is MakeAuthorization plus the canonical header name,
// ready to attach to an outbound request.
func (c *Client) AuthorizationHeader(amount string, persist bool) (name, value string, err error) {
	value, err = c.MakeAuthorization(amount, persist)
	if err != nil {
		return "", "", err
	}
	return state.HeaderName, value, nil
}

// Balance returns the spendable balance (added - spent) according to the
// provider's authoritative ledger. The local cache is never consulted.
func (c *Client) Balance(ctx context.Context) (types.Token, error) {
	st, err := c.fetchRemote(ctx)
	if err != nil {
		return types.Token{}, err
	}
	return st.Remaining()
}

// SpentRemote returns the cumulative spend the provider has accepted.
func (c *Client) SpentRemote(ctx context.Context) (types.Token, error) {
	st, err := c.fetchRemote(ctx)
	if err != nil {
		return types.Token{}, err
	}
	return st.SpentBalance, nil
}

func (c *Client) fetchRemote(ctx context.Context) (*oracle.RemoteState, error) {
	id, err := c.channel()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.oracle.FetchState(ctx, id)
}

// Info returns the locally cached channel record with the secret key
// redacted.
func (c *Client) Info() (*types.ChannelRecord, error) {
	id, err := c.channel()
	if err != nil {
		return nil, err
	}
	rec, err := c.store.Load(id)
	if err != nil {
		return nil, err
	}
	redacted := rec.Redacted()
	return &redacted, nil
}
