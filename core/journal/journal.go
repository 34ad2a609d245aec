// Package journal persists emitted launchpad events in an append-only pebble store.
package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/trufnetwork/launchpad-go/core/logging"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
	"go.uber.org/zap"
)

var (
	eventPrefix = []byte("evt/")
	eventUpper  = []byte("evt0") // '0' follows '/'
)

// Entry is one journaled event
type Entry struct {
	ID      uuid.UUID       `json:"id"`
	Seq     uint64          `json:"seq"`
	Source  common.Address  `json:"source"`
	Name    string          `json:"name"`
	Time    int64           `json:"time"` // unix seconds
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v
func (e Entry) Decode(v any) error {
	return errors.Wrapf(json.Unmarshal(e.Payload, v), "decode %s payload", e.Name)
}

// Journal is an EventSink that appends every event under a monotonically increasing sequence number
type Journal struct {
	db     *pebble.DB
	clock  types.Clock
	logger *zap.Logger

	mu  sync.Mutex
	seq uint64 // last written
}

// Compile-time check that Journal implements EventSink
var _ types.EventSink = (*Journal)(nil)

// Option configures a Journal
type Option func(*config)

type config struct {
	fs     vfs.FS
	clock  types.Clock
	logger *zap.Logger
}

// WithFS sets the filesystem pebble runs on; vfs.NewMem() keeps the journal in memory
func WithFS(fs vfs.FS) Option {
	return func(c *config) {
		c.fs = fs
	}
}

// WithClock sets the time source used to stamp entries
func WithClock(clock types.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithLogger sets the journal logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Open opens or creates the journal in dir and resumes its sequence
func Open(dir string, opts ...Option) (*Journal, error) {
	c := config{}
	for _, opt := range opts {
		opt(&c)
	}
	if c.clock == nil {
		c.clock = util.SystemClock{}
	}
	if c.logger == nil {
		c.logger = logging.Named("journal")
	}

	db, err := pebble.Open(dir, &pebble.Options{FS: c.fs})
	if err != nil {
		return nil, errors.Wrapf(err, "open journal at %s", dir)
	}

	j := &Journal{db: db, clock: c.clock, logger: c.logger}
	if j.seq, err = j.lastSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	j.logger.Debug("journal opened", zap.String("dir", dir), zap.Uint64("seq", j.seq))
	return j, nil
}

func (j *Journal) lastSeq() (uint64, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: eventPrefix, UpperBound: eventUpper})
	if err != nil {
		return 0, errors.Wrap(err, "open journal iterator")
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, nil
	}
	return binary.BigEndian.Uint64(iter.Key()[len(eventPrefix):]), nil
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(eventPrefix)+8)
	copy(key, eventPrefix)
	binary.BigEndian.PutUint64(key[len(eventPrefix):], seq)
	return key
}

// Append durably writes an event and returns its entry
func (j *Journal) Append(source common.Address, event types.Event) (Entry, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "encode %s event", event.EventName())
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entry := Entry{
		ID:      uuid.New(),
		Seq:     j.seq + 1,
		Source:  source,
		Name:    event.EventName(),
		Time:    j.clock.Now().Unix(),
		Payload: payload,
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, errors.Wrap(err, "encode journal entry")
	}
	if err := j.db.Set(eventKey(entry.Seq), value, pebble.Sync); err != nil {
		return Entry{}, errors.Wrapf(err, "write journal entry %d", entry.Seq)
	}
	j.seq = entry.Seq
	return entry, nil
}

// Record implements types.EventSink. Write failures are logged, never returned to the emitting call.
func (j *Journal) Record(_ context.Context, source common.Address, event types.Event) {
	if _, err := j.Append(source, event); err != nil {
		j.logger.Error("failed to journal event",
			zap.String("event", event.EventName()),
			zap.String("source", source.Hex()),
			zap.Error(err),
		)
	}
}

// Events returns the entries with a sequence number of at least from, in order
func (j *Journal) Events(from uint64) ([]Entry, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: eventKey(from), UpperBound: eventUpper})
	if err != nil {
		return nil, errors.Wrap(err, "open journal iterator")
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		var entry Entry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, errors.Wrapf(err, "decode journal entry at %x", iter.Key())
		}
		entries = append(entries, entry)
	}
	return entries, errors.Wrap(iter.Error(), "iterate journal")
}

// EventsOf returns the entries emitted by source, optionally filtered by event name
func (j *Journal) EventsOf(source common.Address, names ...string) ([]Entry, error) {
	all, err := j.Events(0)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	var out []Entry
	for _, entry := range all {
		if entry.Source != source {
			continue
		}
		if _, ok := wanted[entry.Name]; len(wanted) > 0 && !ok {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Seq returns the sequence number of the last entry, 0 when empty
func (j *Journal) Seq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Close flushes and closes the store
func (j *Journal) Close() error {
	return errors.Wrap(j.db.Close(), "close journal")
}
