package gateway

import "testing"

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(100)

	for i := int64(1); i <= 10; i++ {
		rb.Push(i, "AAPL", []byte("msg"))
	}

	got := rb.Range(3, 7)
	if len(got) != 5 {
		t.Fatalf("Range(3,7): expected 5, got %d", len(got))
	}
	for i, e := range got {
		expected := int64(i) + 3
		if e.Seq != expected {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, expected)
		}
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5) // tiny buffer

	// Push 8 entries, the first 3 are evicted
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, "AAPL", []byte("msg"))
	}

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}

	// Should only contain seqs 4-8
	got := rb.Range(1, 10)
	if len(got) != 5 {
		t.Fatalf("Range(1,10): expected 5, got %d", len(got))
	}
	if got[0].Seq != 4 {
		t.Errorf("oldest entry seq = %d, want 4", got[0].Seq)
	}
	if got[4].Seq != 8 {
		t.Errorf("newest entry seq = %d, want 8", got[4].Seq)
	}
	if got[0].Symbol != "AAPL" {
		t.Errorf("symbol = %q, want AAPL", got[0].Symbol)
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	got := rb.Range(1, 100)
	if len(got) != 0 {
		t.Fatalf("empty buffer Range should return 0, got %d", len(got))
	}
}

func TestReplayBuffer_ForFiltersBySymbol(t *testing.T) {
	rb := NewReplayBuffer(4)
	syms := []string{"AAPL", "MSFT", "AAPL", "MSFT", "AAPL", "MSFT"}
	for i, s := range syms {
		rb.Push(int64(i+1), s, []byte{byte('0' + i + 1)})
	}

	// seqs 1 and 2 were overwritten
	got := rb.For(2, func(s string) bool { return s == "AAPL" })
	if len(got) != 2 || string(got[0]) != "3" || string(got[1]) != "5" {
		t.Fatalf("For(2, AAPL) = %q, want [3 5]", got)
	}
	if n := len(rb.For(6, func(string) bool { return true })); n != 0 {
		t.Errorf("For(last seq) returned %d envelopes, want 0", n)
	}
}

func TestReplayBuffer_PushCopiesData(t *testing.T) {
	rb := NewReplayBuffer(2)
	data := []byte("abc")
	rb.Push(1, "AAPL", data)
	data[0] = 'x'
	if got := string(rb.Range(1, 1)[0].Data); got != "abc" {
		t.Errorf("stored envelope = %q, want abc", got)
	}
}
