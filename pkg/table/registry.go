package table

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zhangyunhao116/skipmap"

	"kvcore/pkg/clock"
	"kvcore/pkg/config"
	"kvcore/pkg/filter"
	"kvcore/pkg/memtable"
	"kvcore/pkg/types"
)

type orderedTables = skipmap.FuncMap[uint64, *Table]

// Registry holds flushed tables newest first. All tables share one filter
// buffer; each flush appends one segment to it.
type Registry struct {
	// mu serialises filter construction against filter queries
	mu     sync.RWMutex
	filter *filter.BloomFilter

	tables *orderedTables
	seq    *clock.Sequence
	logger *slog.Logger

	filterSkips    atomic.Uint64
	falsePositives atomic.Uint64
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Tables                  int     `json:"tables"`
	Keys                    int     `json:"keys"`
	FilterBytes             int     `json:"filter_bytes"`
	FilterBitsPerKey        int     `json:"filter_bits_per_key"`
	FilterProbes            int     `json:"filter_probes"`
	FilterSkips             uint64  `json:"filter_skips"`
	FilterFalsePositives    uint64  `json:"filter_false_positives"`
	FilterFalsePositiveRate float64 `json:"filter_false_positive_rate"`
}

// Verdict is the filter's answer for one table.
type Verdict struct {
	ID         string `json:"id"`
	Seq        uint64 `json:"seq"`
	InRange    bool   `json:"in_range"`
	MayContain bool   `json:"may_contain"`
}

func NewRegistry(cfg config.BloomFilterConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	var f *filter.BloomFilter
	if cfg.BitsPerKey > 0 {
		f = filter.NewBloomFilter(cfg.BitsPerKey)
	} else {
		f = filter.NewBloomFilterWithRate(cfg.ExpectedEntries, cfg.FPRate)
	}

	return &Registry{
		filter: f,
		tables: skipmap.NewFunc[uint64, *Table](func(a, b uint64) bool {
			return a > b
		}),
		seq:    clock.NewSequence(0),
		logger: logger,
	}
}

// Flush turns mem into a table: it builds a filter segment over the distinct
// user keys and registers the table. mem must not be written to afterwards.
func (r *Registry) Flush(mem *memtable.Memtable) (*Table, error) {
	if mem == nil || mem.Empty() {
		return nil, ErrEmptyMemtable
	}

	keys := mem.UserKeys()

	r.mu.Lock()
	seg := r.filter.CreateFilter(keys)
	r.mu.Unlock()

	if seg.Empty() {
		return nil, fmt.Errorf("table: filter segment for %d keys is empty", len(keys))
	}

	t := &Table{
		ID:         uuid.New(),
		Seq:        r.seq.Next(),
		Mem:        mem,
		Filter:     seg,
		BitsPerKey: r.filter.BitsPerKey(),
		Smallest:   keys[0],
		Largest:    keys[len(keys)-1],
		Keys:       len(keys),
		CreatedAt:  time.Now(),
	}
	r.tables.Store(t.Seq, t)

	r.logger.Info("table flushed",
		"id", t.ID.String(),
		"seq", t.Seq,
		"keys", t.Keys,
		"entries", mem.Len(),
		"filter_offset", seg.Offset,
		"filter_bytes", seg.Length,
	)

	return t, nil
}

// Get returns the newest version of key visible at snapshot across all
// tables. Tables whose filter rules the key out are not searched.
func (r *Registry) Get(key []byte, snapshot types.SeqN) (memtable.Item, bool) {
	var (
		item  memtable.Item
		found bool
	)

	r.tables.Range(func(_ uint64, t *Table) bool {
		if !t.covers(key) {
			return true
		}
		if !r.mayContain(key, t) {
			r.filterSkips.Add(1)
			return true
		}

		item, found = t.Mem.Get(key, snapshot)
		if !found {
			r.falsePositives.Add(1)
		}
		return !found
	})

	return item, found
}

// Check reports the filter verdict of every table for key, newest first.
func (r *Registry) Check(key []byte) []Verdict {
	verdicts := make([]Verdict, 0, r.tables.Len())
	r.tables.Range(func(_ uint64, t *Table) bool {
		verdicts = append(verdicts, Verdict{
			ID:         t.ID.String(),
			Seq:        t.Seq,
			InRange:    t.covers(key),
			MayContain: r.mayContain(key, t),
		})
		return true
	})
	return verdicts
}

// Tables returns the registered tables, newest first.
func (r *Registry) Tables() []*Table {
	out := make([]*Table, 0, r.tables.Len())
	r.tables.Range(func(_ uint64, t *Table) bool {
		out = append(out, t)
		return true
	})
	return out
}

func (r *Registry) Len() int {
	return r.tables.Len()
}

// FilterData returns a copy of the shared filter buffer.
func (r *Registry) FilterData() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return bytes.Clone(r.filter.Data())
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	filterBytes := r.filter.Size()
	r.mu.RUnlock()

	st := Stats{
		Tables:               r.tables.Len(),
		FilterBytes:          filterBytes,
		FilterBitsPerKey:     r.filter.BitsPerKey(),
		FilterProbes:         r.filter.K(),
		FilterSkips:          r.filterSkips.Load(),
		FilterFalsePositives: r.falsePositives.Load(),
	}
	r.tables.Range(func(_ uint64, t *Table) bool {
		st.Keys += t.Keys
		return true
	})
	if consulted := st.FilterSkips + st.FilterFalsePositives; consulted > 0 {
		st.FilterFalsePositiveRate = float64(st.FilterFalsePositives) / float64(consulted)
	}

	return st
}

func (r *Registry) mayContain(key []byte, t *Table) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter.MatchSegment(key, t.Filter)
}
