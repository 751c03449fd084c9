package dynamic

import (
	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	"github.com/Unhackables/chainbase/index"
	"github.com/Unhackables/chainbase/logging"
)

// Table is one named (id, primary, secondary, value) collection inside a
// Dynamic Database. Its three orderings — by id; by (primary, secondary,
// id); by (secondary, primary, id) — are expressed as an
// index.Index[Record] with two non-unique secondary keys on
// (primary,secondary) and (secondary,primary), letting it reuse the
// typed index's allocator, persistence and undo wiring unchanged.
// Uniqueness of the two composite orderings comes from the id component
// named in their key, exactly as the original's ordered_unique
// composite_key does — two records may share a (primary,secondary) pair
// as long as their ids differ, so these secondary keys must not be
// marked Unique (that would compare primary/secondary alone and wrongly
// reject such pairs).
type Table struct {
	name          string
	primaryMode   CompareMode
	secondaryMode CompareMode

	idx   *index.Index[Record]
	cache *ristretto.Cache[uint64, *Record]
}

// NewTable constructs an unattached table. primaryMode/secondaryMode are
// immutable for the table's lifetime once its first record is created.
// A fresh table's id counter starts at 1, not 0, per the dynamic record
// store's own starting-id rule (distinct from the static façade's typed
// indices, which start at 0).
func NewTable(name string, primaryMode, secondaryMode CompareMode) *Table {
	t := &Table{name: name, primaryMode: primaryMode, secondaryMode: secondaryMode}
	secondaries := []index.SecondaryKey[Record]{
		{Name: "by_ps", Unique: false, KeyOf: t.byPSKey},
		{Name: "by_sp", Unique: false, KeyOf: t.bySPKey},
	}
	t.idx = index.New[Record](name, 0, 1, recordCodec(), secondaries)

	cache, err := ristretto.NewCache(&ristretto.Config[uint64, *Record]{
		NumCounters: 10_000,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		logging.L().Warn("record cache disabled", zap.String("table", t.name), zap.Error(err))
	}
	t.cache = cache
	return t
}

func (t *Table) byPSKey(r *Record) []byte {
	return append(orderedBytes(t.primaryMode, r.Primary), orderedBytes(t.secondaryMode, r.Secondary)...)
}

func (t *Table) bySPKey(r *Record) []byte {
	return append(orderedBytes(t.secondaryMode, r.Secondary), orderedBytes(t.primaryMode, r.Primary)...)
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// MetaOffset returns the underlying index's persisted metadata offset.
func (t *Table) MetaOffset() uint64 { return t.idx.MetaOffset() }

func (t *Table) invalidate(id uint64) {
	if t.cache != nil {
		t.cache.Del(id)
	}
}

// invalidateAll drops every cached entry, used after an undo/commit that
// may have touched records this table's cache can no longer vouch for.
func (t *Table) invalidateAll() {
	if t.cache != nil {
		t.cache.Clear()
	}
}
