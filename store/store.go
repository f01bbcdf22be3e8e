// Package store persists channel records as JSON files under
// <baseDir>/channels/<channel_id>.json, the layout shared with the
// channel-opening tooling. Records are validated on load; spent-balance
// updates are written atomically under a cross-process file lock and are
// conditional on the caller's baseline still being current.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/flock"

	"github.com/vitwit/paychan/logger"
	"github.com/vitwit/paychan/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Store is what the client needs from channel persistence.
type Store interface {
	// Load returns the record for channelID, CHANNEL_NOT_FOUND if no
	// backing file exists and STORE_CORRUPT if it fails to parse into
	// the expected shape.
	Load(channelID string) (*types.ChannelRecord, error)

	// PersistSpent overwrites only the spent_balance field of the
	// backing record, leaving every other field untouched, and only if
	// the record still carries prev; a writer holding a stale baseline
	// gets CONCURRENT_UPDATE instead of clobbering a newer spend. It
	// never mutates added_balance or withdrawn_balance.
	PersistSpent(channelID string, prev, next types.Token) error

	// SelectOnly resolves the channel id when none was configured:
	// exactly one record must exist, otherwise AMBIGUOUS_CHANNEL.
	SelectOnly() (string, error)
}

// FileStore is the file-backed Store.
type FileStore struct {
	baseDir string
	log     logger.Logger
}

func NewFileStore(baseDir string, log logger.Logger) *FileStore {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &FileStore{baseDir: baseDir, log: log}
}

func (s *FileStore) channelsDir() string {
	return filepath.Join(s.baseDir, "channels")
}

func (s *FileStore) recordPath(channelID string) string {
	return filepath.Join(s.channelsDir(), channelID+".json")
}

func (s *FileStore) Load(channelID string) (*types.ChannelRecord, error) {
	data, err := os.ReadFile(s.recordPath(channelID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &types.Error{
			Code:    types.ErrChannelNotFound,
			Message: fmt.Sprintf("no record for channel %q under %s", channelID, s.channelsDir()),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("reading channel %q: %w", channelID, err)
	}

	var rec types.ChannelRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &types.Error{
			Code:    types.ErrStoreCorrupt,
			Message: fmt.Sprintf("channel %q does not parse: %v", channelID, err),
		}
	}
	if err := validate.Struct(&rec); err != nil {
		return nil, &types.Error{
			Code:    types.ErrStoreCorrupt,
			Message: fmt.Sprintf("channel %q is missing required fields: %v", channelID, err),
		}
	}

	s.log.Debug("loaded channel record", logger.Fields{
		"channel": rec.ChannelID,
		"spent":   rec.SpentBalance.String(),
		"added":   rec.AddedBalance.String(),
	})
	return &rec, nil
}

// PersistSpent re-reads the backing file, patches spent_balance and writes
// the result back via temp file, fsync and rename. The re-read runs under
// an exclusive flock and the patch is conditional on the stored spend
// still matching prev, so an interleaved load-compute-persist sequence
// fails with CONCURRENT_UPDATE rather than silently reverting a newer
// cumulative spend.
func (s *FileStore) PersistSpent(channelID string, prev, next types.Token) error {
	path := s.recordPath(channelID)

	// Check existence before touching the lock file so a missing record
	// surfaces as CHANNEL_NOT_FOUND, not as a lock-acquisition failure.
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return &types.Error{
			Code:    types.ErrChannelNotFound,
			Message: fmt.Sprintf("no record for channel %q under %s", channelID, s.channelsDir()),
		}
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking channel %q: %w", channelID, err)
	}
	defer lock.Unlock() //nolint:errcheck

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &types.Error{
			Code:    types.ErrChannelNotFound,
			Message: fmt.Sprintf("no record for channel %q under %s", channelID, s.channelsDir()),
		}
	}
	if err != nil {
		return fmt.Errorf("reading channel %q: %w", channelID, err)
	}

	// Patch at the JSON level so fields this store does not own survive
	// byte-for-byte, including ones written by newer tooling.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &types.Error{
			Code:    types.ErrStoreCorrupt,
			Message: fmt.Sprintf("channel %q does not parse: %v", channelID, err),
		}
	}

	current, ok := raw["spent_balance"]
	if !ok {
		return &types.Error{
			Code:    types.ErrStoreCorrupt,
			Message: fmt.Sprintf("channel %q carries no spent_balance", channelID),
		}
	}
	var stored types.Token
	if err := json.Unmarshal(current, &stored); err != nil {
		return &types.Error{
			Code:    types.ErrStoreCorrupt,
			Message: fmt.Sprintf("channel %q spent_balance does not parse: %v", channelID, err),
		}
	}
	if stored.Cmp(prev) != 0 {
		return &types.Error{
			Code: types.ErrConcurrentUpdate,
			Message: fmt.Sprintf("channel %q spent_balance is %s, expected %s; reload and retry",
				channelID, stored, prev),
		}
	}

	encoded, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding spent balance: %w", err)
	}
	raw["spent_balance"] = encoded

	updated, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding channel %q: %w", channelID, err)
	}

	if err := writeAtomic(path, updated); err != nil {
		return fmt.Errorf("persisting channel %q: %w", channelID, err)
	}

	s.log.Info("persisted spent balance", logger.Fields{
		"channel": channelID,
		"spent":   next.String(),
	})
	return nil
}

func (s *FileStore) SelectOnly() (string, error) {
	entries, err := os.ReadDir(s.channelsDir())
	if errors.Is(err, fs.ErrNotExist) {
		return "", &types.Error{
			Code:    types.ErrAmbiguousChannel,
			Message: fmt.Sprintf("no channels found at %s", s.channelsDir()),
		}
	}
	if err != nil {
		return "", fmt.Errorf("listing channels: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) != 1 {
		return "", &types.Error{
			Code:    types.ErrAmbiguousChannel,
			Message: fmt.Sprintf("expected exactly one channel, found %d", len(names)),
		}
	}

	// Trust the record's channel_id over the filename.
	data, err := os.ReadFile(filepath.Join(s.channelsDir(), names[0]))
	if err != nil {
		return "", fmt.Errorf("reading channel %q: %w", names[0], err)
	}
	var rec struct {
		ChannelID string `json:"channel_id"`
	}
	if err := json.Unmarshal(data, &rec); err != nil || rec.ChannelID == "" {
		return "", &types.Error{
			Code:    types.ErrStoreCorrupt,
			Message: fmt.Sprintf("channel file %q carries no channel_id", names[0]),
		}
	}
	return rec.ChannelID, nil
}

// writeAtomic replaces path with data without ever exposing a torn file:
// write to a temp file in the same directory, fsync, then rename over.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
