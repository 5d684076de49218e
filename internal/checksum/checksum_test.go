package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("")
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != empty {
		t.Errorf("Sum(nil) = %q", got)
	}
	if Sum([]byte("a")) == Sum([]byte("b")) {
		t.Error("different input should differ")
	}
}

func TestOfSidecar(t *testing.T) {
	if got := OfSidecar(nil, false); got != "" {
		t.Errorf("missing sidecar checksum = %q, want empty", got)
	}
	if got := OfSidecar([]byte{}, true); got == "" {
		t.Error("existing empty sidecar should have a checksum")
	}
}
