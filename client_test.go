package paychan_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/paychan"
	"github.com/vitwit/paychan/store"
	"github.com/vitwit/paychan/types"
	"github.com/vitwit/paychan/verification"
)

const oneToken = "1000000000000000000000000" // 10^24 atomic units

func senderKeys(t *testing.T) (ed25519.PublicKey, string, string) {
	t.Helper()
	seed := bytes.Repeat([]byte{42}, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return pub,
		types.KeyPrefix + base58.Encode(pub),
		types.KeyPrefix + base58.Encode(append(append([]byte{}, seed...), pub...))
}

// writeChannel seeds a backing record and returns the base dir.
func writeChannel(t *testing.T, channelID, spent, added string) string {
	t.Helper()
	_, public, secret := senderKeys(t)

	base := t.TempDir()
	dir := filepath.Join(base, "channels")
	require.NoError(t, os.MkdirAll(dir, 0o700))

	data := []byte(`{
		"channel_id": "` + channelID + `",
		"receiver": {"account_id": "provider.near", "public_key": "` + public + `"},
		"sender": {"account_id": "alice.near", "public_key": "` + public + `"},
		"sender_secret_key": "` + secret + `",
		"spent_balance": "` + spent + `",
		"added_balance": "` + added + `",
		"withdrawn_balance": "0"
	}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, channelID+".json"), data, 0o600))
	return base
}

func newClient(t *testing.T, baseDir string) *paychan.Client {
	t.Helper()
	return paychan.New(types.Config{
		ProviderURL: "http://127.0.0.1:0",
		BaseDir:     baseDir,
	})
}

func TestMakeAuthorization(t *testing.T) {
	// Channel "abc" funded with one token, nothing spent yet.
	base := writeChannel(t, "abc", "0", oneToken)
	client := newClient(t, base)

	value, err := client.MakeAuthorization("0.001", true)
	require.NoError(t, err)

	// 4-byte length + 3-byte id + 16-byte amount + version byte + 64-byte signature
	payload, err := base64.StdEncoding.DecodeString(value)
	require.NoError(t, err)
	assert.Len(t, payload, 4+3+16+1+64)

	parsed, err := verification.ParsePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, "abc", parsed.ChannelID)
	assert.Equal(t, "1000000000000000000000", parsed.Spent.String()) // 0.001 * 10^24

	pub, _, _ := senderKeys(t)
	assert.True(t, parsed.Verify(pub))

	// persisted as the new local baseline
	rec, err := store.NewFileStore(base, nil).Load("abc")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000", rec.SpentBalance.String())
}

func TestMakeAuthorizationInsufficientBalance(t *testing.T) {
	base := writeChannel(t, "abc", "0", oneToken)
	client := newClient(t, base)

	_, err := client.MakeAuthorization("1.5", true)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInsufficientBalance))

	// the local record is untouched
	rec, err := store.NewFileStore(base, nil).Load("abc")
	require.NoError(t, err)
	assert.True(t, rec.SpentBalance.IsZero())
}

func TestMakeAuthorizationCeilingBoundary(t *testing.T) {
	// spending exactly up to the ceiling succeeds
	base := writeChannel(t, "abc", "0", oneToken)
	client := newClient(t, base)

	_, err := client.MakeAuthorization("1", true)
	require.NoError(t, err)

	rec, err := store.NewFileStore(base, nil).Load("abc")
	require.NoError(t, err)
	assert.Equal(t, oneToken, rec.SpentBalance.String())

	// the channel is now exhausted
	_, err = client.MakeAuthorization("0.000000000000000000000001", true)
	assert.True(t, types.IsCode(err, types.ErrInsufficientBalance))
}

func TestMakeAuthorizationWithoutPersist(t *testing.T) {
	base := writeChannel(t, "abc", "0", oneToken)
	client := newClient(t, base)

	_, err := client.MakeAuthorization("0.001", false)
	require.NoError(t, err)

	rec, err := store.NewFileStore(base, nil).Load("abc")
	require.NoError(t, err)
	assert.True(t, rec.SpentBalance.IsZero())
}

func TestMakeAuthorizationCumulative(t *testing.T) {
	base := writeChannel(t, "abc", "0", oneToken)
	client := newClient(t, base)

	_, err := client.MakeAuthorization("0.001", true)
	require.NoError(t, err)
	value, err := client.MakeAuthorization("0.002", true)
	require.NoError(t, err)

	parsed, err := verification.ParseHeader(value)
	require.NoError(t, err)
	assert.Equal(t, "3000000000000000000000", parsed.Spent.String())
}

func TestMakeAuthorizationStaleWriterLoses(t *testing.T) {
	// A second process that read the record before this client advanced
	// it must not be able to roll the baseline back.
	base := writeChannel(t, "abc", "0", oneToken)
	client := newClient(t, base)

	s := store.NewFileStore(base, nil)
	before, err := s.Load("abc") // the other process's snapshot
	require.NoError(t, err)

	_, err = client.MakeAuthorization("0.005", true)
	require.NoError(t, err)

	amt, err := types.ParseDisplay("0.003")
	require.NoError(t, err)
	err = s.PersistSpent("abc", before.SpentBalance, before.SpentBalance.Add(amt))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConcurrentUpdate))

	rec, err := s.Load("abc")
	require.NoError(t, err)
	assert.Equal(t, "5000000000000000000000", rec.SpentBalance.String())
}

func TestMakeAuthorizationRejectsBadAmount(t *testing.T) {
	base := writeChannel(t, "abc", "0", oneToken)
	client := newClient(t, base)

	for _, amount := range []string{"-0.5", "nope", ""} {
		_, err := client.MakeAuthorization(amount, true)
		assert.True(t, types.IsCode(err, types.ErrInvalidAmount), amount)
	}
}

func TestAuthorizationHeaderName(t *testing.T) {
	base := writeChannel(t, "abc", "0", oneToken)
	client := newClient(t, base)

	name, value, err := client.AuthorizationHeader("0.001", false)
	require.NoError(t, err)
	assert.Equal(t, "X-Payments-Signature", name)
	assert.NotEmpty(t, value)
}

func TestBalanceUsesRemoteState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pc/state/abc", r.URL.Path)
		w.Write([]byte(`{"spent_balance": "2", "added_balance": "5"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	// local cache deliberately disagrees with the provider
	base := writeChannel(t, "abc", "999", oneToken)
	client := paychan.New(types.Config{ProviderURL: srv.URL, BaseDir: base})

	balance, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3", balance.String())

	spent, err := client.SpentRemote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", spent.String())
}

func TestBalanceOracleUnavailable(t *testing.T) {
	base := writeChannel(t, "abc", "0", oneToken)
	client := newClient(t, base) // nothing listening on the provider URL

	_, err := client.Balance(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrOracleUnavailable))
}

func TestChannelAutoSelection(t *testing.T) {
	// no channel id configured, a single record on disk: it is used
	base := writeChannel(t, "abc", "0", oneToken)
	client := newClient(t, base)

	value, err := client.MakeAuthorization("0.001", false)
	require.NoError(t, err)
	parsed, err := verification.ParseHeader(value)
	require.NoError(t, err)
	assert.Equal(t, "abc", parsed.ChannelID)
}

func TestChannelSelectionAmbiguous(t *testing.T) {
	client := newClient(t, t.TempDir())

	_, err := client.MakeAuthorization("0.001", false)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrAmbiguousChannel))
}

func TestExplicitChannelNotFound(t *testing.T) {
	client := paychan.New(types.Config{
		ProviderURL: "http://127.0.0.1:0",
		BaseDir:     t.TempDir(),
		ChannelID:   "nope",
	})

	_, err := client.MakeAuthorization("0.001", false)
	assert.True(t, types.IsCode(err, types.ErrChannelNotFound))
}

func TestInfoRedactsSecret(t *testing.T) {
	base := writeChannel(t, "abc", "0", oneToken)
	client := newClient(t, base)

	rec, err := client.Info()
	require.NoError(t, err)
	assert.Equal(t, "abc", rec.ChannelID)
	assert.NotContains(t, rec.SenderSecretKey, "ed25519:")
}
