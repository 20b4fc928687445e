package table

import (
	"testing"

	"github.com/critdb/crit/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedSetInsertLookup(t *testing.T) {
	tb := New(OrderedSet, 1)
	require.NoError(t, tb.Insert(record.Record{"alice", 32}))
	got := tb.Lookup("alice")
	require.Len(t, got, 1)
	assert.Equal(t, record.Record{"alice", 32}, got[0])
}

func TestOrderedSetAtMostOnePerKey(t *testing.T) {
	tb := New(OrderedSet, 1)
	require.NoError(t, tb.Insert(record.Record{"alice", 32}))
	require.NoError(t, tb.Insert(record.Record{"alice", 40}))
	assert.Equal(t, 1, tb.Size())
	got := tb.Lookup("alice")
	require.Len(t, got, 1)
	assert.Equal(t, 40, got[0][1])
}

func TestOrderedSetDumpSorted(t *testing.T) {
	tb := New(OrderedSet, 1)
	for _, k := range []string{"c", "a", "d", "b"} {
		require.NoError(t, tb.Insert(record.Record{k}))
	}
	dump := tb.Dump()
	keys := make([]string, len(dump))
	for i, r := range dump {
		keys[i] = r[0].(string)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys)
}

func TestOrderedSetInsertDeleteRoundTrip(t *testing.T) {
	tb := New(OrderedSet, 1)
	require.NoError(t, tb.Insert(record.Record{"alice", 32}))
	require.NoError(t, tb.Delete("alice"))
	assert.Equal(t, 0, tb.Size())
	assert.Empty(t, tb.Dump())
}

func TestOrderedSetDeleteMany(t *testing.T) {
	tb := New(OrderedSet, 1)
	require.NoError(t, tb.InsertMany([]record.Record{{1}, {2}, {3}, {4}, {5}}))
	require.NoError(t, tb.Delete(1))
	require.NoError(t, tb.DeleteMany([]any{5, 4}))
	require.NoError(t, tb.InsertMany([]record.Record{{6}, {7}}))
	dump := tb.Dump()
	keys := make([]int, len(dump))
	for i, r := range dump {
		keys[i] = r[0].(int)
	}
	assert.Equal(t, []int{2, 3, 6, 7}, keys)
}

func TestBagMultipleRecordsPerKey(t *testing.T) {
	tb := New(Bag, 1)
	require.NoError(t, tb.Insert(record.Record{"alice", 32}))
	require.NoError(t, tb.Insert(record.Record{"alice", 40}))
	got := tb.Lookup("alice")
	assert.Len(t, got, 2)
}

func TestBagDeleteObject(t *testing.T) {
	tb := New(Bag, 1)
	require.NoError(t, tb.Insert(record.Record{"alice", 32}))
	require.NoError(t, tb.Insert(record.Record{"alice", 40}))
	require.NoError(t, tb.DeleteObject(record.Record{"alice", 32}))
	got := tb.Lookup("alice")
	require.Len(t, got, 1)
	assert.Equal(t, 40, got[0][1])
}

func TestBagDeleteObjectNoMatchIsNoop(t *testing.T) {
	tb := New(Bag, 1)
	require.NoError(t, tb.Insert(record.Record{"alice", 32}))
	require.NoError(t, tb.DeleteObject(record.Record{"alice", 999}))
	assert.Equal(t, 1, tb.Size())
}

func TestReplace(t *testing.T) {
	tb := New(OrderedSet, 1)
	require.NoError(t, tb.Insert(record.Record{"stale"}))
	tb.Replace([]record.Record{{"a"}, {"b"}})
	assert.Equal(t, 2, tb.Size())
	assert.Empty(t, tb.Lookup("stale"))
}

func TestLookupReturnsCloneNotAlias(t *testing.T) {
	tb := New(OrderedSet, 1)
	require.NoError(t, tb.Insert(record.Record{"alice", 32}))
	got := tb.Lookup("alice")
	got[0][1] = 999
	got2 := tb.Lookup("alice")
	assert.Equal(t, 32, got2[0][1])
}
