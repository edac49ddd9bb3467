package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// BadgerStoreConfig configures a BadgerStore.
type BadgerStoreConfig struct {
	// DBPath is the database directory. Ignored when InMemory is set.
	DBPath string `mapstructure:"db_path"`

	InMemory bool `mapstructure:"in_memory"`
}

// BadgerStore keeps the audit trail in BadgerDB.
//
// Keys are "evt/<escaped image>/<unix-nano>/<seq>/<id>" with the numbers
// zero-padded, so a prefix scan over one image yields its entries in time order and
// entries sharing a timestamp keep their append order. Values are JSON.
type BadgerStore struct {
	db  *badger.DB
	seq atomic.Uint64
}

// NewBadgerStore opens (or creates) the database.
func NewBadgerStore(ctx context.Context, config BadgerStoreConfig) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if config.DBPath == "" && !config.InMemory {
		return nil, fmt.Errorf("badger audit store: db_path is required")
	}

	opts := badger.DefaultOptions(config.DBPath)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &BadgerStore{db: db}, nil
}

func keyEntryPrefix(image string) []byte {
	return []byte("evt/" + url.PathEscape(image) + "/")
}

func keyEntry(e Entry, seq uint64) []byte {
	return []byte(fmt.Sprintf("evt/%s/%020d/%010d/%s", url.PathEscape(e.Image), e.Time.UnixNano(), seq, e.ID))
}

func (s *BadgerStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	key := keyEntry(e, s.seq.Add(1))

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

func (s *BadgerStore) List(ctx context.Context, image string) ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyEntryPrefix(image)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var e Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("failed to decode audit entry %q: %w", it.Item().Key(), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
