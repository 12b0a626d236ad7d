package interner

import (
	"sync"
	"testing"
)

func TestInternAssignsDenseIDs(t *testing.T) {
	in := New()

	a := in.Intern("a")
	b := in.Intern("b")
	again := in.Intern("a")

	if a != 0 || b != 1 {
		t.Errorf("Expected ids 0 and 1, got %d and %d", a, b)
	}
	if again != a {
		t.Errorf("Re-interning returned %d, want %d", again, a)
	}
	if in.Len() != 2 {
		t.Errorf("Len() = %d, want 2", in.Len())
	}
}

func TestTextRoundTrip(t *testing.T) {
	in := New()
	words := []string{"alpha", "", "gamma", "alpha beta"}
	ids := make([]ID, len(words))
	for i, w := range words {
		ids[i] = in.Intern(w)
	}
	for i, id := range ids {
		got, ok := in.Text(id)
		if !ok {
			t.Fatalf("Text(%d) not found", id)
		}
		if got != words[i] {
			t.Errorf("Text(%d) = %q, want %q", id, got, words[i])
		}
	}
}

func TestTextUnknownID(t *testing.T) {
	in := New()
	in.Intern("x")

	if _, ok := in.Text(7); ok {
		t.Error("Text(7) should not be found")
	}
	if _, err := in.MustText(7); err == nil {
		t.Error("MustText(7) should fail")
	}
}

func TestLookupDoesNotIntern(t *testing.T) {
	in := New()
	if _, ok := in.Lookup("missing"); ok {
		t.Error("Lookup found a string that was never interned")
	}
	if in.Len() != 0 {
		t.Errorf("Lookup grew the interner to %d entries", in.Len())
	}
}

func TestAllReturnsCopy(t *testing.T) {
	in := New()
	in.Intern("a")
	in.Intern("b")

	all := in.All()
	all[0] = "mutated"

	if got, _ := in.Text(0); got != "a" {
		t.Errorf("All() exposed internal storage, Text(0) = %q", got)
	}
}

func TestFromStrings(t *testing.T) {
	in, err := FromStrings([]string{"x", "y", "z"})
	if err != nil {
		t.Fatalf("FromStrings failed: %v", err)
	}
	if id, _ := in.Lookup("z"); id != 2 {
		t.Errorf("Lookup(z) = %d, want 2", id)
	}

	if _, err := FromStrings([]string{"x", "x"}); err == nil {
		t.Error("FromStrings should reject duplicates")
	}
}

func TestInternConcurrent(t *testing.T) {
	in := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, s := range []string{"a", "b", "c", "d"} {
				in.Intern(s)
			}
		}()
	}
	wg.Wait()

	if in.Len() != 4 {
		t.Errorf("Len() = %d, want 4", in.Len())
	}
}
