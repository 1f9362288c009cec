package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MathisTLD/multiparse/pkg/codec"
	"github.com/MathisTLD/multiparse/pkg/multipart"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/segmentio/ksuid"
)

var (
	ErrNotFound  = errors.New("storage: part not found")
	ErrInvalidID = errors.New("storage: invalid part id")
	ErrClosed    = errors.New("storage: store is closed")
)

var keyPrefix = []byte("part/")

// StoreConfig controls how the part store is opened
type StoreConfig struct {
	DataDir  string
	InMemory bool // keep everything in memory, DataDir is ignored
	Sync     bool // fsync every write
}

// Entry is a stored part with its id and capture time
type Entry struct {
	ID         ksuid.KSUID
	CapturedAt time.Time
	Part       multipart.Part
}

// PartStore persists decoded parts in pebble keyed by KSUID so iteration
// follows capture order. Ids handed out by one store strictly increase, even
// for parts saved within the same second.
type PartStore struct {
	db    *pebble.DB
	codec *codec.PartCodec
	sync  *pebble.WriteOptions
	now   func() time.Time

	mu     sync.Mutex
	lastID ksuid.KSUID // greatest id saved so far
}

// Open opens or creates a part store
func Open(config StoreConfig) (*PartStore, error) {
	opts := &pebble.Options{}
	dir := config.DataDir
	if config.InMemory {
		opts.FS = vfs.NewMem()
		dir = ""
	} else if dir == "" {
		return nil, fmt.Errorf("storage: data directory is required")
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", dir, err)
	}

	writeOpts := pebble.NoSync
	if config.Sync {
		writeOpts = pebble.Sync
	}

	store := &PartStore{
		db:    db,
		codec: codec.NewPartCodec(),
		sync:  writeOpts,
		now:   time.Now,
	}
	if store.lastID, err = store.newestID(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Save stores part and returns its id
func (s *PartStore) Save(part multipart.Part) (ksuid.KSUID, error) {
	if s.db == nil {
		return ksuid.Nil, ErrClosed
	}

	at := s.now()
	id, err := s.nextID(at)
	if err != nil {
		return ksuid.Nil, err
	}

	record, err := codec.NewRecord(part, at)
	if err != nil {
		return ksuid.Nil, err
	}

	if err := s.db.Set(partKey(id), record.Marshal(), s.sync); err != nil {
		return ksuid.Nil, fmt.Errorf("storage: save %s: %w", id, err)
	}
	return id, nil
}

// Get returns the part stored under id
func (s *PartStore) Get(id ksuid.KSUID) (Entry, error) {
	if s.db == nil {
		return Entry{}, ErrClosed
	}

	data, closer, err := s.db.Get(partKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("storage: get %s: %w", id, err)
	}
	defer closer.Close()

	return s.decodeEntry(id, data)
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (s *PartStore) List(limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	iter, err := s.newIter()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var entries []Entry
	for valid := iter.Last(); valid; valid = iter.Prev() {
		if limit > 0 && len(entries) >= limit {
			break
		}
		id, err := ksuid.FromBytes(iter.Key()[len(keyPrefix):])
		if err != nil {
			return nil, fmt.Errorf("storage: corrupt key %x: %w", iter.Key(), err)
		}
		entry, err := s.decodeEntry(id, iter.Value())
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored parts
func (s *PartStore) Count() (int, error) {
	if s.db == nil {
		return 0, ErrClosed
	}

	iter, err := s.newIter()
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	n := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		n++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("storage: count: %w", err)
	}
	return n, nil
}

// Delete removes the part stored under id
func (s *PartStore) Delete(id ksuid.KSUID) error {
	if s.db == nil {
		return ErrClosed
	}

	key := partKey(id)
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", id, err)
	}
	closer.Close()

	return s.db.Delete(key, s.sync)
}

// Close closes the underlying database
func (s *PartStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// ParseID parses the string form of a part id
func ParseID(raw string) (ksuid.KSUID, error) {
	id, err := ksuid.Parse(raw)
	if err != nil {
		return ksuid.Nil, fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return id, nil
}

// nextID returns a random KSUID for at, or the successor of the last id when
// the random one would sort before it. KSUID timestamps only have second
// resolution.
func (s *PartStore) nextID(at time.Time) (ksuid.KSUID, error) {
	id, err := ksuid.NewRandomWithTime(at)
	if err != nil {
		return ksuid.Nil, fmt.Errorf("storage: generate id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ksuid.Compare(id, s.lastID) <= 0 {
		id = s.lastID.Next()
	}
	s.lastID = id
	return id, nil
}

// newestID returns the greatest stored id, ksuid.Nil for an empty store
func (s *PartStore) newestID() (ksuid.KSUID, error) {
	iter, err := s.newIter()
	if err != nil {
		return ksuid.Nil, err
	}
	defer iter.Close()

	if !iter.Last() {
		return ksuid.Nil, iter.Error()
	}
	id, err := ksuid.FromBytes(iter.Key()[len(keyPrefix):])
	if err != nil {
		return ksuid.Nil, fmt.Errorf("storage: corrupt key %x: %w", iter.Key(), err)
	}
	return id, nil
}

func (s *PartStore) newIter() (*pebble.Iterator, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: prefixUpperBound(keyPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: iterator: %w", err)
	}
	return iter, nil
}

// decodeEntry copies what it keeps, data is only valid until the pebble
// closer or iterator moves
func (s *PartStore) decodeEntry(id ksuid.KSUID, data []byte) (Entry, error) {
	part, at, err := s.codec.DecodePart(data)
	if err != nil {
		return Entry{}, fmt.Errorf("storage: part %s: %w", id, err)
	}
	return Entry{ID: id, CapturedAt: at, Part: part}, nil
}

func partKey(id ksuid.KSUID) []byte {
	raw := id.Bytes()
	key := make([]byte, 0, len(keyPrefix)+len(raw))
	key = append(key, keyPrefix...)
	return append(key, raw...)
}

func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
