package bitset

import "testing"

func TestSetFlagsIdempotent(t *testing.T) {
	a := SetFlags([]int{3}, Set{})
	b := SetFlags([]int{3}, a)
	if !a.Equal(b) {
		t.Fatalf("setting an already-set flag changed the set: %s vs %s", a, b)
	}
}

func TestUnsetFlagMaskClearsTargetBit(t *testing.T) {
	for _, i := range []int{0, 1, 5, 63, 64, 100000} {
		set := SetFlags([]int{i}, Set{})
		cleared := ApplyMask(UnsetFlagMask(i), set)
		if !cleared.Equal(Set{}) {
			t.Fatalf("apply_mask(unset_flag_mask(%d), set_flags([%d],0)) = %s, want 0", i, i, cleared)
		}
	}
}

func TestUnsetFlagMaskLeavesOtherBits(t *testing.T) {
	set := SetFlags([]int{1, 2, 3}, Set{})
	got := ApplyMask(UnsetFlagMask(1), set)
	want := SetFlags([]int{2, 3}, Set{})
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestSetFlagsLargeIndex(t *testing.T) {
	const big = 100003
	set := SetFlags([]int{big}, Set{})
	if !set.IsSet(big) {
		t.Fatalf("bit %d not set", big)
	}
	if set.IsSet(big - 1) {
		t.Fatalf("unexpected neighboring bit set")
	}
}

func TestSetFlagsMultipleIndices(t *testing.T) {
	set := SetFlags([]int{0, 2, 4}, Set{})
	for _, i := range []int{0, 2, 4} {
		if !set.IsSet(i) {
			t.Fatalf("expected bit %d set", i)
		}
	}
	if set.IsSet(1) || set.IsSet(3) {
		t.Fatalf("unexpected bit set in %s", set)
	}
}
