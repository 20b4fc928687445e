package table

import "github.com/critdb/crit/internal/record"

// bag stores any number of records per key, keyed by a map from key to
// slice of records, insertion-ordered per key the way the corpus's
// map-backed stores hold multiple values under one bucket.
type bag struct {
	data   map[any][]record.Record
	order  []any // insertion order of keys, for a stable Dump
	keyPos int
	size   int
}

func newBag(keyPos int) *bag {
	return &bag{data: make(map[any][]record.Record), keyPos: keyPos}
}

func (b *bag) Type() Type  { return Bag }
func (b *bag) KeyPos() int { return b.keyPos }
func (b *bag) Size() int   { return b.size }

func (b *bag) Insert(r record.Record) error {
	if err := record.Validate(r, b.keyPos); err != nil {
		return err
	}
	key, err := r.Key(b.keyPos)
	if err != nil {
		return err
	}
	if _, exists := b.data[key]; !exists {
		b.order = append(b.order, key)
	}
	b.data[key] = append(b.data[key], r)
	b.size++
	return nil
}

func (b *bag) InsertMany(rs []record.Record) error {
	for _, r := range rs {
		if err := b.Insert(r); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes every record stored under key.
func (b *bag) Delete(key any) error {
	if recs, ok := b.data[key]; ok {
		b.size -= len(recs)
		delete(b.data, key)
		b.pruneOrder(key)
	}
	return nil
}

func (b *bag) DeleteMany(keys []any) error {
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// DeleteObject removes one record equal to r by full value, the bag's
// native delete discipline.
func (b *bag) DeleteObject(r record.Record) error {
	key, err := r.Key(b.keyPos)
	if err != nil {
		return err
	}
	recs, ok := b.data[key]
	if !ok {
		return nil
	}
	for i, existing := range recs {
		if existing.Equal(r) {
			recs = append(recs[:i], recs[i+1:]...)
			b.size--
			break
		}
	}
	if len(recs) == 0 {
		delete(b.data, key)
		b.pruneOrder(key)
	} else {
		b.data[key] = recs
	}
	return nil
}

func (b *bag) DeleteObjects(rs []record.Record) error {
	for _, r := range rs {
		if err := b.DeleteObject(r); err != nil {
			return err
		}
	}
	return nil
}

func (b *bag) Lookup(key any) []record.Record {
	recs, ok := b.data[key]
	if !ok {
		return nil
	}
	out := make([]record.Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}

func (b *bag) Dump() []record.Record {
	out := make([]record.Record, 0, b.size)
	for _, key := range b.order {
		for _, r := range b.data[key] {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (b *bag) Replace(dump []record.Record) {
	fresh := newBag(b.keyPos)
	for _, r := range dump {
		_ = fresh.Insert(r)
	}
	*b = *fresh
}

func (b *bag) pruneOrder(key any) {
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}
