package table

import (
	"math/rand"

	"github.com/critdb/crit/internal/record"
)

const (
	maxLevel    = 16
	probability = 0.5
)

// skipNode is one entry in the ordered_set's skip list. Unlike a
// string-keyed skip list, the key here is an opaque comparable value; total
// order comes from record.CompareKeys.
type skipNode struct {
	key     any
	rec     record.Record
	forward []*skipNode
}

// orderedSet stores at most one record per key, ordered by key ascending,
// as a skip list generalized to compare arbitrary key types.
type orderedSet struct {
	head   *skipNode
	level  int
	size   int
	keyPos int
}

func newOrderedSet(keyPos int) *orderedSet {
	return &orderedSet{
		head:   &skipNode{forward: make([]*skipNode, maxLevel)},
		keyPos: keyPos,
	}
}

func (s *orderedSet) Type() Type { return OrderedSet }
func (s *orderedSet) KeyPos() int { return s.keyPos }
func (s *orderedSet) Size() int   { return s.size }

func (s *orderedSet) randomLevel() int {
	level := 0
	for rand.Float64() < probability && level < maxLevel-1 {
		level++
	}
	return level
}

// findPredecessors walks the list top-down, returning the last node at each
// level whose key is strictly less than key, and the first node whose key is
// >= key (or nil).
func (s *orderedSet) findPredecessors(key any) (update []*skipNode, found *skipNode) {
	update = make([]*skipNode, maxLevel)
	current := s.head
	for i := s.level; i >= 0; i-- {
		for current.forward[i] != nil && record.CompareKeys(current.forward[i].key, key) < 0 {
			current = current.forward[i]
		}
		update[i] = current
	}
	found = current.forward[0]
	return update, found
}

func (s *orderedSet) put(key any, rec record.Record) {
	update, found := s.findPredecessors(key)
	if found != nil && record.CompareKeys(found.key, key) == 0 {
		found.rec = rec
		return
	}

	newLevel := s.randomLevel()
	if newLevel > s.level {
		for i := s.level + 1; i <= newLevel; i++ {
			update[i] = s.head
		}
		s.level = newLevel
	}

	node := &skipNode{key: key, rec: rec, forward: make([]*skipNode, newLevel+1)}
	for i := 0; i <= newLevel; i++ {
		node.forward[i] = update[i].forward[i]
		update[i].forward[i] = node
	}
	s.size++
}

func (s *orderedSet) get(key any) (record.Record, bool) {
	_, found := s.findPredecessors(key)
	if found != nil && record.CompareKeys(found.key, key) == 0 {
		return found.rec, true
	}
	return nil, false
}

func (s *orderedSet) remove(key any) bool {
	update, found := s.findPredecessors(key)
	if found == nil || record.CompareKeys(found.key, key) != 0 {
		return false
	}
	for i := 0; i <= s.level; i++ {
		if update[i].forward[i] != found {
			break
		}
		update[i].forward[i] = found.forward[i]
	}
	for s.level > 0 && s.head.forward[s.level] == nil {
		s.level--
	}
	s.size--
	return true
}

func (s *orderedSet) Insert(r record.Record) error {
	if err := record.Validate(r, s.keyPos); err != nil {
		return err
	}
	key, err := r.Key(s.keyPos)
	if err != nil {
		return err
	}
	s.put(key, r)
	return nil
}

func (s *orderedSet) InsertMany(rs []record.Record) error {
	for _, r := range rs {
		if err := s.Insert(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *orderedSet) Delete(key any) error {
	s.remove(key)
	return nil
}

func (s *orderedSet) DeleteMany(keys []any) error {
	for _, k := range keys {
		s.remove(k)
	}
	return nil
}

// DeleteObject on ordered_set removes the record under r's key only if the
// stored record equals r exactly, matching the "at most one record per key"
// discipline while still respecting bag-style delete-by-value semantics.
func (s *orderedSet) DeleteObject(r record.Record) error {
	key, err := r.Key(s.keyPos)
	if err != nil {
		return err
	}
	if existing, ok := s.get(key); ok && existing.Equal(r) {
		s.remove(key)
	}
	return nil
}

func (s *orderedSet) DeleteObjects(rs []record.Record) error {
	for _, r := range rs {
		if err := s.DeleteObject(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *orderedSet) Lookup(key any) []record.Record {
	if rec, ok := s.get(key); ok {
		return []record.Record{rec.Clone()}
	}
	return nil
}

func (s *orderedSet) Dump() []record.Record {
	out := make([]record.Record, 0, s.size)
	for n := s.head.forward[0]; n != nil; n = n.forward[0] {
		out = append(out, n.rec.Clone())
	}
	return out
}

func (s *orderedSet) Replace(dump []record.Record) {
	fresh := newOrderedSet(s.keyPos)
	for _, r := range dump {
		_ = fresh.Insert(r)
	}
	*s = *fresh
}
