package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	e:<path>   Entry (JSON)
//	m:built    build time (RFC 3339, UTC)
const (
	prefixEntry = "e:"
	keyBuiltAt  = "m:built"
)

func keyEntry(p string) []byte {
	return []byte(prefixEntry + p)
}

// BadgerBackend stores the index listing in a BadgerDB directory so a
// restarted server can answer searches before its first refresh completes.
type BadgerBackend struct {
	db *badgerdb.DB
}

// OpenBadger opens (or creates) a BadgerDB at dir. An empty dir opens an
// in-memory database.
func OpenBadger(dir string) (*BadgerBackend, error) {
	var opts badgerdb.Options
	if dir == "" {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		opts = badgerdb.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger index at %q: %w", dir, err)
	}
	return &BadgerBackend{db: db}, nil
}

func (b *BadgerBackend) Name() string { return "badger" }

func (b *BadgerBackend) Load(ctx context.Context) ([]Entry, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, err
	}

	var (
		entries []Entry
		builtAt time.Time
	)
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyBuiltAt))
		switch {
		case errors.Is(err, badgerdb.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				return builtAt.UnmarshalText(val)
			}); err != nil {
				return fmt.Errorf("decode build time: %w", err)
			}
		}

		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEntry)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode entry %q: %w", it.Item().Key(), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load index: %w", err)
	}
	return entries, builtAt, nil
}

func (b *BadgerBackend) Save(ctx context.Context, entries []Entry, builtAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.db.DropPrefix([]byte(prefixEntry)); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, e := range entries {
		val, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode entry %q: %w", e.Path, err)
		}
		if err := wb.Set(keyEntry(e.Path), val); err != nil {
			return fmt.Errorf("failed to write entry %q: %w", e.Path, err)
		}
	}
	stamp, err := builtAt.UTC().MarshalText()
	if err != nil {
		return err
	}
	if err := wb.Set([]byte(keyBuiltAt), stamp); err != nil {
		return err
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush index: %w", err)
	}
	return nil
}

func (b *BadgerBackend) Put(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry %q: %w", e.Path, err)
	}
	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(keyEntry(e.Path), val)
	})
}

// Healthcheck verifies the database can serve a read transaction.
func (b *BadgerBackend) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.db.View(func(*badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

var _ Backend = (*BadgerBackend)(nil)
