package sha256

import "testing"

// TestSumDeterministic ensures repeated hashing yields the same digest.
func TestSumDeterministic(t *testing.T) {
	t.Parallel()

	got := Sum([]byte("hello world"))
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if again := Sum([]byte("hello world")); again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
	if SumString("hello world") != got {
		t.Fatalf("SumString should match Sum for identical input")
	}
}
