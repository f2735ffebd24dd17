// Package journal keeps a persistent, bounded log of served requests in
// BadgerDB.
//
// The server records every finished request into it (server.WithJournal);
// the CLI reads it back with "httpfileserv journal".
//
// Storage layout:
// Each record is one key/value pair. The key is "r:" followed by the
// record time as big-endian Unix nanoseconds and the 16 bytes of the
// record ID, so a forward iteration visits records oldest first and two
// records with the same timestamp never collide. The value is the record
// as JSON.
//
// Retention:
// When MaxEntries is set, every Record call deletes the oldest records
// beyond the bound in the same call, so the journal never holds more than
// MaxEntries records between calls.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/httpfileserv/internal/logger"
)

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal is closed")

// Record is one served request.
type Record struct {
	// ID identifies the record. Filled with a random UUID when zero.
	ID uuid.UUID `json:"id"`

	// Time orders records. Filled with the current time when zero.
	Time time.Time `json:"time"`

	// Remote is the peer address.
	Remote string `json:"remote,omitempty"`

	// Method, Path and Status describe the request and its answer.
	Method string `json:"method"`
	Path   string `json:"path"`
	Status int    `json:"status"`

	// Bytes is the response size on the wire, headers included.
	Bytes int64 `json:"bytes"`

	// Duration is the time from accept to close.
	Duration time.Duration `json:"duration"`
}

// Config configures a journal.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// MaxEntries bounds the number of stored records; the oldest are dropped
	// first. 0 means unbounded.
	MaxEntries int

	// InMemory keeps the journal in RAM only.
	InMemory bool

	// BadgerOptions overrides the defaults derived from Path and InMemory.
	BadgerOptions *badger.Options
}

// Journal is a BadgerDB-backed request log.
//
// Thread safety:
// All methods are safe for concurrent use. Writes are serialized by mu so
// the record count used for pruning stays exact; reads run in their own
// badger transactions.
type Journal struct {
	// db is the underlying store, owned by the Journal.
	db *badger.DB

	// maxEntries bounds the number of records; 0 means unbounded.
	maxEntries int

	// mu serializes writes and guards count and closed.
	mu sync.Mutex

	// count is the number of records currently stored.
	count int

	// closed is set by Close; later calls return ErrClosed.
	closed bool
}

// Open opens (or creates) the journal described by cfg.
//
// Option precedence: BadgerOptions, then InMemory, then Path (required when
// neither of the others is set). Existing records are counted on open, so
// the bound applies across restarts.
func Open(ctx context.Context, cfg Config) (*Journal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	switch {
	case cfg.BadgerOptions != nil:
		opts = *cfg.BadgerOptions
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	default:
		if cfg.Path == "" {
			return nil, fmt.Errorf("journal: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	// Badger logs through its own logger; keep it quiet next to ours.
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", cfg.Path, err)
	}

	j := &Journal{db: db, maxEntries: cfg.MaxEntries}
	if j.count, err = j.countRecords(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("Journal opened with %d records (max %d)", j.count, cfg.MaxEntries)
	return j, nil
}

// countRecords walks the record keys without fetching values.
func (j *Journal) countRecords() (int, error) {
	count := 0
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(recordPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count journal records: %w", err)
	}
	return count, nil
}

// Record appends rec. A zero ID or Time is filled in.
func (j *Journal) Record(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode journal record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}

	if err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.Time, rec.ID), value)
	}); err != nil {
		return fmt.Errorf("failed to write journal record: %w", err)
	}
	j.count++

	if j.maxEntries > 0 && j.count > j.maxEntries {
		return j.pruneLocked(j.count - j.maxEntries)
	}
	return nil
}

// pruneLocked deletes the n oldest records. j.mu must be held.
// pruneLocked deletes the n oldest records in one write batch. j.mu must
// be held.
func (j *Journal) pruneLocked(n int) error {
	var keys [][]byte
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(recordPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid() && len(keys) < n; it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan journal for pruning: %w", err)
	}

	wb := j.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("failed to prune journal: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to prune journal: %w", err)
	}

	j.count -= len(keys)
	return nil
}

// Recent returns up to n records, newest first. n <= 0 returns all.
func (j *Journal) Recent(ctx context.Context, n int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j.mu.Lock()
	closed := j.closed
	j.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	var records []Record
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(recordPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefixEnd()); it.Valid(); it.Next() {
			if n > 0 && len(records) >= n {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("failed to decode journal record %x: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Len returns the number of stored records.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// Close flushes and closes the database. Safe to call more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}
