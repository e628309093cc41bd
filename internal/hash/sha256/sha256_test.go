// Package sha256 includes tests for the SHA-256 hasher adapter.
package sha256

import "testing"

// TestHasherHash ensures hashing is deterministic and matches known digests.
func TestHasherHash(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":            "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		"hello world": "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
	}
	h := New()
	for input, want := range cases {
		got, err := h.Hash([]byte(input))
		if err != nil {
			t.Fatalf("Hash(%q) error = %v", input, err)
		}
		if got != want {
			t.Fatalf("Hash(%q) = %s, want %s", input, got, want)
		}
		again, _ := h.Hash([]byte(input))
		if again != got {
			t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
		}
	}
}
