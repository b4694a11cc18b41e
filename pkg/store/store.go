package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"kvcore/pkg/arena"
	"kvcore/pkg/batch"
	"kvcore/pkg/clock"
	"kvcore/pkg/config"
	"kvcore/pkg/dberrors"
	"kvcore/pkg/iterator"
	"kvcore/pkg/memtable"
	"kvcore/pkg/skiplist"
	"kvcore/pkg/snapshot"
	"kvcore/pkg/table"
	"kvcore/pkg/types"
)

// Store is the in-memory write path: writes go to the active memtable, full
// memtables are frozen and flushed into tables with a bloom filter segment each,
// and reads consult memtables first and then tables newest first.
//
// Writes are serialised by the store, so every memtable sees a single writer.
// Reads take no locks.
type Store struct {
	cfg    *config.Config
	logger *slog.Logger
	seqN   *clock.Sequence

	writeMu sync.Mutex
	mtOpts  []skiplist.Option

	active atomic.Pointer[memtable.Memtable]
	// frozen memtables waiting for the flusher, newest first
	imm atomic.Pointer[[]*memtable.Memtable]

	registry *table.Registry
	flusher  *Flusher

	snapshots atomic.Int64
	closed    atomic.Bool
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	LastSeq        types.SeqN  `json:"last_seq"`
	ActiveEntries  int         `json:"active_entries"`
	ActiveBytes    uint32      `json:"active_bytes"`
	ActiveCapacity uint32      `json:"active_capacity"`
	Immutable      int         `json:"immutable"`
	OpenSnapshots  int64       `json:"open_snapshots"`
	Tables         table.Stats `json:"tables"`
}

func New(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []skiplist.Option{
		skiplist.WithLogger(logger),
		skiplist.WithBranching(cfg.DB.Skiplist.Branching),
	}
	if seed := cfg.DB.Skiplist.Seed; seed != 0 {
		opts = append(opts, skiplist.WithRandomSource(rand.New(rand.NewPCG(seed, seed))))
	}

	s := &Store{
		cfg:      cfg,
		logger:   logger,
		seqN:     clock.NewSequence(0),
		mtOpts:   opts,
		registry: table.NewRegistry(cfg.DB.BloomFilter, logger),
	}

	mt, err := s.newMemtable()
	if err != nil {
		return nil, err
	}
	s.active.Store(mt)
	s.imm.Store(&[]*memtable.Memtable{})

	s.flusher = NewFlusher(cfg.DB.Memtable.FlushChanBuffSize, s.registry, s.dropImmutable, logger)
	s.flusher.Start(context.Background())

	return s, nil
}

func (s *Store) Put(key, value []byte) error {
	return s.write(types.KindSet, key, value)
}

// Delete writes a tombstone for key.
func (s *Store) Delete(key []byte) error {
	return s.write(types.KindDelete, key, nil)
}

func (s *Store) write(kind types.Kind, key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return s.apply([]batch.Op{{Kind: kind, Key: key, Value: value}})
}

// Apply writes every operation of b under consecutive sequence numbers. Reads
// observe either none or all of them.
func (s *Store) Apply(b *batch.WriteBatch) error {
	if b == nil || b.Count() == 0 {
		return nil
	}
	if err := b.Validate(); err != nil {
		return err
	}
	return s.apply(b.Ops())
}

// apply publishes the last sequence number only after every op is in the index.
// Ops are checked against the memtable size up front and a full arena is
// retried on a fresh memtable, so only a failure to create that memtable can
// stop a batch partway. The applied prefix is then published as is and the
// error returned; later writes continue after it.
func (s *Store) apply(ops []batch.Op) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return dberrors.ErrClosed
	}

	active := s.active.Load()
	for _, op := range ops {
		if !active.Fits(op.Key, op.Value) {
			return fmt.Errorf("failed to write %s: %w", op.Kind, memtable.ErrTooLargeEntry)
		}
	}

	base := s.seqN.Val()
	if types.MaxSeqN-base < uint64(len(ops)) {
		return fmt.Errorf("%w: sequence numbers exhausted", dberrors.ErrInvalidArgument)
	}
	last := base + uint64(len(ops))

	for i, op := range ops {
		if err := s.addLocked(base+uint64(i)+1, op); err != nil {
			s.seqN.Set(base + uint64(i))
			return err
		}
	}
	s.seqN.Set(last)

	if s.active.Load().ApproximateMemoryUsage() >= uint32(s.cfg.DB.Memtable.FlushThresholdBytes) {
		return s.rotateLocked()
	}

	return nil
}

func (s *Store) addLocked(seq types.SeqN, op batch.Op) error {
	err := s.active.Load().Add(seq, op.Kind, op.Key, op.Value)
	if errors.Is(err, arena.ErrArenaFull) {
		if err := s.rotateLocked(); err != nil {
			return err
		}
		err = s.active.Load().Add(seq, op.Kind, op.Key, op.Value)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", op.Kind, err)
	}
	return nil
}

// Snapshot pins the current state. Reads through GetAt ignore every later write.
// Versions are never discarded in memory, so an open snapshot costs nothing
// beyond the counter reported in Stats.
func (s *Store) Snapshot() *snapshot.Snapshot {
	s.snapshots.Add(1)
	return snapshot.New(s.seqN.Val(), func() {
		s.snapshots.Add(-1)
	})
}

// Get returns the latest value of key. A deleted key is reported as not found.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, ErrEmptyKey
	}
	if s.closed.Load() {
		return nil, false, dberrors.ErrClosed
	}

	return s.get(key, s.seqN.Val())
}

// GetAt is Get as of snap.
func (s *Store) GetAt(key []byte, snap *snapshot.Snapshot) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, ErrEmptyKey
	}
	if s.closed.Load() {
		return nil, false, dberrors.ErrClosed
	}

	return s.get(key, snap.Sequence())
}

func (s *Store) get(key []byte, seq types.SeqN) ([]byte, bool, error) {
	item, ok := s.lookup(key, seq)
	if !ok || item.Deleted() {
		return nil, false, nil
	}

	return bytes.Clone(item.Value), true, nil
}

func (s *Store) lookup(key []byte, seq types.SeqN) (memtable.Item, bool) {
	// first check the active memtable
	if item, ok := s.active.Load().Get(key, seq); ok {
		return item, true
	}

	for _, mt := range *s.imm.Load() {
		if item, ok := mt.Get(key, seq); ok {
			return item, true
		}
	}

	return s.registry.Get(key, seq)
}

// Scan returns up to limit live entries with key >= start in key order. A
// limit <= 0 means no limit. Unlike Get, Scan may observe a batch that is
// still being applied.
func (s *Store) Scan(start []byte, limit int) ([]memtable.Item, error) {
	if s.closed.Load() {
		return nil, dberrors.ErrClosed
	}

	iters := []iterator.Iterator{s.active.Load().NewIterator()}
	for _, mt := range *s.imm.Load() {
		iters = append(iters, mt.NewIterator())
	}
	for _, t := range s.registry.Tables() {
		iters = append(iters, t.Mem.NewIterator())
	}

	m := iterator.Merge(bytes.Compare, iters...)
	defer m.Close()

	if len(start) == 0 {
		m.First()
	} else {
		m.Seek(start)
	}

	var out []memtable.Item
	for ; m.Valid() && (limit <= 0 || len(out) < limit); m.Next() {
		if m.Kind() == types.KindDelete {
			continue
		}
		out = append(out, memtable.Item{
			Key:   bytes.Clone(m.Key()),
			Value: bytes.Clone(m.Value()),
			SeqN:  m.SeqN(),
			Kind:  m.Kind(),
		})
	}

	return out, nil
}

// Flush freezes the active memtable, if it holds anything, and waits until
// every frozen memtable has become a table.
func (s *Store) Flush() error {
	s.writeMu.Lock()
	if s.closed.Load() {
		s.writeMu.Unlock()
		return dberrors.ErrClosed
	}
	err := s.rotateLocked()
	s.writeMu.Unlock()
	if err != nil {
		return err
	}

	s.flusher.Wait()
	return nil
}

// Check returns the filter verdict of every table for key.
func (s *Store) Check(key []byte) []table.Verdict {
	return s.registry.Check(key)
}

func (s *Store) Stats() Stats {
	active := s.active.Load()
	return Stats{
		LastSeq:        s.seqN.Val(),
		ActiveEntries:  active.Len(),
		ActiveBytes:    active.ApproximateMemoryUsage(),
		ActiveCapacity: active.Capacity(),
		Immutable:      len(*s.imm.Load()),
		OpenSnapshots:  s.snapshots.Load(),
		Tables:         s.registry.Stats(),
	}
}

// Registry exposes the flushed tables.
func (s *Store) Registry() *table.Registry {
	return s.registry
}

// Close waits for pending flushes and stops the flusher. Data stays readable
// only through references obtained before Close.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.closed.CompareAndSwap(false, true) {
		return dberrors.ErrClosed
	}
	s.flusher.Stop()

	return nil
}

func (s *Store) newMemtable() (*memtable.Memtable, error) {
	mt, err := memtable.New(s.cfg.DB.Memtable, s.mtOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create memtable: %w", err)
	}
	return mt, nil
}

// rotateLocked swaps in a fresh memtable and schedules the old one for
// flushing. The old memtable is published as immutable before it stops being
// active, so readers never miss it.
func (s *Store) rotateLocked() error {
	old := s.active.Load()
	if old.Empty() {
		return nil
	}

	fresh, err := s.newMemtable()
	if err != nil {
		return err
	}

	s.pushImmutable(old)
	s.active.Store(fresh)

	s.logger.Debug("memtable rotated",
		"entries", old.Len(),
		"bytes", old.ApproximateMemoryUsage(),
	)
	s.flusher.Schedule(old)

	return nil
}

func (s *Store) pushImmutable(mt *memtable.Memtable) {
	for {
		cur := s.imm.Load()
		next := make([]*memtable.Memtable, 0, len(*cur)+1)
		next = append(next, mt)
		next = append(next, *cur...)
		if s.imm.CompareAndSwap(cur, &next) {
			return
		}
	}
}

func (s *Store) dropImmutable(mt *memtable.Memtable) {
	for {
		cur := s.imm.Load()
		next := make([]*memtable.Memtable, 0, len(*cur))
		for _, m := range *cur {
			if m != mt {
				next = append(next, m)
			}
		}
		if s.imm.CompareAndSwap(cur, &next) {
			return
		}
	}
}
