// Package oracle queries the provider for the authoritative channel state.
// The provider's ledger, not the sender's local cache, decides what has
// actually been redeemed; callers that need strict consistency consult
// this before authorizing.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vitwit/paychan/logger"
	"github.com/vitwit/paychan/metrics"
	"github.com/vitwit/paychan/types"
)

// RemoteState is the provider-held view of a channel.
type RemoteState struct {
	SpentBalance types.Token `json:"spent_balance"`
	AddedBalance types.Token `json:"added_balance"`
}

// Remaining returns added - spent as the provider sees it.
func (s *RemoteState) Remaining() (types.Token, error) {
	return s.AddedBalance.Sub(s.SpentBalance)
}

// BalanceOracle is the single operation the client depends on. Any
// transport failure surfaces as ORACLE_UNAVAILABLE; retry policy belongs
// to the caller.
type BalanceOracle interface {
	FetchState(ctx context.Context, channelID string) (*RemoteState, error)
}

// defaultRequestTimeout bounds a state query even when the caller's
// context carries no deadline of its own.
const defaultRequestTimeout = 30 * time.Second

// HTTPOracle queries GET <provider>/pc/state/<channelID>.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
	log     logger.Logger
	rec     metrics.Recorder
}

func NewHTTPOracle(providerURL string, log logger.Logger, rec metrics.Recorder) *HTTPOracle {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &HTTPOracle{
		baseURL: strings.TrimRight(providerURL, "/"),
		client:  &http.Client{Timeout: defaultRequestTimeout},
		log:     log,
		rec:     rec,
	}
}

func (o *HTTPOracle) FetchState(ctx context.Context, channelID string) (*RemoteState, error) {
	start := time.Now()
	labels := map[string]string{"channel": channelID}
	o.rec.IncCounter("oracle_fetch", labels)
	defer func() {
		o.rec.ObserveLatency("oracle_fetch", time.Since(start), labels)
	}()

	endpoint := fmt.Sprintf("%s/pc/state/%s", o.baseURL, url.PathEscape(channelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, unavailable(channelID, err.Error())
	}

	resp, err := o.client.Do(req)
	if err != nil {
		o.log.Warn("balance query failed", logger.Fields{"channel": channelID, "error": err.Error()})
		return nil, unavailable(channelID, err.Error())
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		o.log.Warn("balance query rejected", logger.Fields{"channel": channelID, "status": resp.StatusCode})
		return nil, unavailable(channelID, fmt.Sprintf("provider returned status %d", resp.StatusCode))
	}

	var state RemoteState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, unavailable(channelID, fmt.Sprintf("undecodable state body: %v", err))
	}

	o.log.Debug("fetched remote state", logger.Fields{
		"channel": channelID,
		"spent":   state.SpentBalance.String(),
		"added":   state.AddedBalance.String(),
	})
	return &state, nil
}

func unavailable(channelID, detail string) error {
	return &types.Error{
		Code:    types.ErrOracleUnavailable,
		Message: fmt.Sprintf("balance query for channel %q: %s", channelID, detail),
	}
}
