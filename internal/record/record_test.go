package record

import (
	"testing"

	crierrors "github.com/critdb/crit/internal/errors"
)

func TestKey(t *testing.T) {
	r := Record{"alice", 32}
	k, err := r.Key(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k != "alice" {
		t.Fatalf("got %v, want alice", k)
	}
}

func TestKeyOutOfRange(t *testing.T) {
	r := Record{"alice", 32}
	if _, err := r.Key(5); !crierrors.Is(err, crierrors.CodeInvalidRecord) {
		t.Fatalf("expected invalid_record error, got %v", err)
	}
}

func TestEqual(t *testing.T) {
	a := Record{"alice", 32}
	b := Record{"alice", 32}
	c := Record{"alice", 33}
	if !a.Equal(b) {
		t.Fatalf("expected equal records")
	}
	if a.Equal(c) {
		t.Fatalf("expected unequal records")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(Record{"alice", 32}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(Record{}, 1); err == nil {
		t.Fatalf("expected error for empty record")
	}
	if err := Validate(Record{"alice"}, 2); err == nil {
		t.Fatalf("expected error for key position beyond record length")
	}
	if err := Validate(Record{"alice"}, 0); err == nil {
		t.Fatalf("expected error for non-positive key position")
	}
}

func TestCompareKeys(t *testing.T) {
	if CompareKeys("a", "b") >= 0 {
		t.Fatalf("expected a < b")
	}
	if CompareKeys(1, 2) >= 0 {
		t.Fatalf("expected 1 < 2")
	}
	if CompareKeys(2.5, 2.5) != 0 {
		t.Fatalf("expected equal floats to compare equal")
	}
}

func TestClone(t *testing.T) {
	r := Record{"alice", 32}
	c := r.Clone()
	c[1] = 99
	if r[1] != 32 {
		t.Fatalf("mutating clone affected original")
	}
}
