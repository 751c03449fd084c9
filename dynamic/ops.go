package dynamic

import (
	"github.com/Unhackables/chainbase/errs"
	"github.com/Unhackables/chainbase/segment"
)

// Attach materializes this table's index against seg, at off (0 for a
// fresh table).
func (t *Table) Attach(seg *segment.Manager, off uint64) error {
	return t.idx.Attach(seg, off)
}

// Detach drops this table's in-memory structures and cache.
func (t *Table) Detach() {
	t.idx.Detach()
	if t.cache != nil {
		t.cache.Close()
	}
}

// Create inserts a new record and returns it. The id is not known to the
// index's init closure (it is assigned after init runs), so the record
// is persisted once with ID still zero and then re-persisted with the
// real id filled in — otherwise a reattach would decode every record's
// ID field back to zero even though the live map is correctly keyed.
func (t *Table) Create(primary, secondary Key, value []byte) (*Record, uint64, error) {
	value = append([]byte(nil), value...)
	_, id, err := t.idx.Create(func(r *Record) {
		r.Primary, r.Secondary, r.Value = primary, secondary, value
	})
	if err != nil {
		return nil, 0, err
	}
	if err := t.idx.Modify(id, func(r *Record) { r.ID = id }); err != nil {
		return nil, 0, err
	}
	rec, err := t.idx.Get(id)
	if err != nil {
		return nil, 0, err
	}
	return rec, id, nil
}

// Modify mutates the record identified by id.
func (t *Table) Modify(id uint64, mutator func(r *Record)) error {
	err := t.idx.Modify(id, mutator)
	t.invalidate(id)
	return err
}

// Remove deletes the record identified by id.
func (t *Table) Remove(id uint64) error {
	err := t.idx.Remove(id)
	t.invalidate(id)
	return err
}

// GetByID returns the record for id, failing with ErrOutOfRange on miss.
// A cache hit still requires the caller to be holding the appropriate
// lock — the cache only saves a redundant decode, it is not a substitute
// for the lock/undo contract.
func (t *Table) GetByID(id uint64) (*Record, error) {
	if t.cache != nil {
		if v, ok := t.cache.Get(id); ok {
			return v, nil
		}
	}
	rec, err := t.idx.Get(id)
	if err != nil {
		return nil, err
	}
	if t.cache != nil {
		t.cache.Set(id, rec, 1)
	}
	return rec, nil
}

// FindByID returns the record for id, or ok=false on miss.
func (t *Table) FindByID(id uint64) (*Record, bool) {
	rec, err := t.GetByID(id)
	if err != nil {
		return nil, false
	}
	return rec, true
}

// GetByPrimary returns the first record (in secondary-key order) whose
// primary key equals primary, failing with ErrOutOfRange on miss. More
// than one record may share a primary key with distinct secondary keys
// and ids; this returns only one of them.
func (t *Table) GetByPrimary(primary Key) (*Record, error) {
	rec, ok := t.idx.FindByPrefix("by_ps", orderedBytes(t.primaryMode, primary))
	if !ok {
		return nil, errs.ErrOutOfRange
	}
	return rec, nil
}

// FindByPrimary returns the first record (in secondary-key order) whose
// primary key equals primary, or ok=false on miss.
func (t *Table) FindByPrimary(primary Key) (*Record, bool) {
	return t.idx.FindByPrefix("by_ps", orderedBytes(t.primaryMode, primary))
}

// GetBySecondary returns the first record (in primary-key order) whose
// secondary key equals secondary, failing with ErrOutOfRange on miss.
// More than one record may share a secondary key with distinct primary
// keys and ids; this returns only one of them.
func (t *Table) GetBySecondary(secondary Key) (*Record, error) {
	rec, ok := t.idx.FindByPrefix("by_sp", orderedBytes(t.secondaryMode, secondary))
	if !ok {
		return nil, errs.ErrOutOfRange
	}
	return rec, nil
}

// FindBySecondary returns the first record (in primary-key order) whose
// secondary key equals secondary, or ok=false on miss.
func (t *Table) FindBySecondary(secondary Key) (*Record, bool) {
	return t.idx.FindByPrefix("by_sp", orderedBytes(t.secondaryMode, secondary))
}
