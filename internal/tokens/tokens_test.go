package tokens

import "testing"

func TestEstimateCount(t *testing.T) {
	c := NewEstimateCounter()
	if got := c.Count(""); got != 0 {
		t.Fatalf("empty text: got %d", got)
	}
	if got := c.Count("ab"); got != 1 {
		t.Fatalf("short text floors at 1 token, got %d", got)
	}
	if got := c.Count("abcdefgh"); got != 2 {
		t.Fatalf("8 chars estimate: got %d, want 2", got)
	}
}

func TestFromChars(t *testing.T) {
	c := NewEstimateCounter()
	if got := c.FromChars(1000); got != 250 {
		t.Fatalf("got %d, want 250", got)
	}
	if got := c.FromChars(-5); got != 0 {
		t.Fatalf("negative chars: got %d, want 0", got)
	}
}
