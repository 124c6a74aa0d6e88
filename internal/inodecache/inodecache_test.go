package inodecache

import "testing"

func TestLookup_UnknownByDefault(t *testing.T) {
	c := New()
	st := c.Lookup(42)
	if st.Status != Unknown {
		t.Errorf("expected Unknown, got %v", st.Status)
	}
}

func TestMarkValid(t *testing.T) {
	c := New()
	c.MarkValid(1)
	if st := c.Lookup(1); st.Status != Valid {
		t.Errorf("expected Valid, got %v", st.Status)
	}
}

func TestMarkCorrupt(t *testing.T) {
	c := New()
	c.MarkCorrupt(2, "not a bzip2 file")
	st := c.Lookup(2)
	if st.Status != Corrupt {
		t.Errorf("expected Corrupt, got %v", st.Status)
	}
	if st.CorruptCause != "not a bzip2 file" {
		t.Errorf("expected cause to be recorded, got %q", st.CorruptCause)
	}
}

func TestMarkInconclusive_IncrementsRetryCount(t *testing.T) {
	c := New()
	c.MarkInconclusive(3)
	c.MarkInconclusive(3)
	c.MarkInconclusive(3)
	st := c.Lookup(3)
	if st.Status != Inconclusive {
		t.Errorf("expected Inconclusive, got %v", st.Status)
	}
	if st.RetryCount != 2 {
		t.Errorf("expected RetryCount 2 after 3 marks, got %d", st.RetryCount)
	}
}

func TestDrop(t *testing.T) {
	c := New()
	c.MarkValid(4)
	c.Drop(4)
	if st := c.Lookup(4); st.Status != Unknown {
		t.Errorf("expected Unknown after Drop, got %v", st.Status)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Drop, got len %d", c.Len())
	}
}

func TestLen(t *testing.T) {
	c := New()
	c.MarkValid(1)
	c.MarkCorrupt(2, "x")
	if c.Len() != 2 {
		t.Errorf("expected len 2, got %d", c.Len())
	}
}
