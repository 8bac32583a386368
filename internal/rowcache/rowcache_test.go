package rowcache

import (
	"errors"
	"testing"
)

func rowsOf(vals ...int) []map[string]any {
	out := make([]map[string]any, 0, len(vals))
	for _, v := range vals {
		out = append(out, map[string]any{"n": int64(v)})
	}
	return out
}

func TestNewKey_ColumnOrderInsensitive(t *testing.T) {
	t.Parallel()

	a := NewKey("t", []string{"b", "a", "c"})
	b := NewKey("t", []string{"c", "b", "a"})
	if a != b {
		t.Fatalf("keys differ for same column set: %#v vs %#v", a, b)
	}
	if full := NewKey("t", nil); full == a {
		t.Fatalf("full-table key must differ from projected key")
	}
}

func TestGetOrLoad_LoaderOnlyOnMiss(t *testing.T) {
	t.Parallel()

	c := New()
	k := NewKey("t", nil)
	calls := 0
	loader := func() ([]map[string]any, error) {
		calls++
		return rowsOf(1, 2), nil
	}

	rows, hit, err := c.GetOrLoad(k, loader)
	if err != nil || hit || len(rows) != 2 {
		t.Fatalf("first load: rows=%d hit=%v err=%v", len(rows), hit, err)
	}
	rows, hit, err = c.GetOrLoad(k, loader)
	if err != nil || !hit || len(rows) != 2 {
		t.Fatalf("second load: rows=%d hit=%v err=%v", len(rows), hit, err)
	}
	if calls != 1 {
		t.Fatalf("loader called %d times, want 1", calls)
	}
}

func TestGetOrLoad_ErrorNotCached(t *testing.T) {
	t.Parallel()

	c := New()
	k := NewKey("t", nil)
	boom := errors.New("refused")
	calls := 0

	_, _, err := c.GetOrLoad(k, func() ([]map[string]any, error) {
		calls++
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("error result must not populate the cache")
	}

	// Next call retries the loader.
	_, _, _ = c.GetOrLoad(k, func() ([]map[string]any, error) {
		calls++
		return rowsOf(1), nil
	})
	if calls != 2 {
		t.Fatalf("loader not retried after error")
	}
}

func TestInvalidate_TargetsOnlyOneTable(t *testing.T) {
	t.Parallel()

	c := New()
	load := func(rows []map[string]any) func() ([]map[string]any, error) {
		return func() ([]map[string]any, error) { return rows, nil }
	}
	_, _, _ = c.GetOrLoad(NewKey("orders", nil), load(rowsOf(1)))
	_, _, _ = c.GetOrLoad(NewKey("orders", []string{"a"}), load(rowsOf(2)))
	_, _, _ = c.GetOrLoad(NewKey("orders_archive", nil), load(rowsOf(3)))

	if n := c.Invalidate("orders"); n != 2 {
		t.Fatalf("Invalidate removed %d entries, want 2", n)
	}
	// Similarly-named tables are untouched: matching is exact, not substring.
	if _, ok := c.Lookup(NewKey("orders_archive", nil)); !ok {
		t.Fatalf("entry for other table was evicted")
	}
	if _, ok := c.Lookup(NewKey("orders", nil)); ok {
		t.Fatalf("entry for invalidated table survived")
	}
}

func TestInvalidateAll(t *testing.T) {
	t.Parallel()

	c := New()
	_, _, _ = c.GetOrLoad(NewKey("a", nil), func() ([]map[string]any, error) { return rowsOf(1), nil })
	_, _, _ = c.GetOrLoad(NewKey("b", nil), func() ([]map[string]any, error) { return rowsOf(2), nil })
	c.InvalidateAll()
	if c.Len() != 0 {
		t.Fatalf("InvalidateAll left %d entries", c.Len())
	}
}
