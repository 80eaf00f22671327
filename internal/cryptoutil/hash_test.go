package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestSHA256Hex(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"hello world", "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
	}
	for _, tt := range tests {
		if got := SHA256Hex([]byte(tt.in)); got != tt.want {
			t.Errorf("SHA256Hex(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHashEqual(t *testing.T) {
	full := SHA256Hex([]byte("meetings"))
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"same", full, SHA256Hex([]byte("meetings")), true},
		{"different", full, SHA256Hex([]byte("other")), false},
		{"both empty", "", "", true},
		{"one empty", full, "", false},
		{"case sensitive", "abcdef", "ABCDEF", false},
		{"prefix", full, full[:32], false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HashEqual(tt.a, tt.b); got != tt.want {
				t.Fatalf("HashEqual = %v, want %v", got, tt.want)
			}
		})
	}
}

func FuzzSHA256Hex(f *testing.F) {
	f.Add([]byte(""))
	f.Add([]byte(`["Quarterly Pint Review"]`))
	f.Add([]byte{0xff, 0xfe, 0xfd})

	f.Fuzz(func(t *testing.T, data []byte) {
		got := SHA256Hex(data)
		if len(got) != 64 || got != strings.ToLower(got) {
			t.Fatalf("SHA256Hex = %q, want 64 lowercase hex chars", got)
		}
		h := sha256.Sum256(data)
		if want := hex.EncodeToString(h[:]); got != want {
			t.Fatalf("SHA256Hex = %q, stdlib = %q", got, want)
		}
	})
}

func FuzzHashEqual(f *testing.F) {
	f.Add("abc", "abc")
	f.Add("abc", "def")
	f.Add("a", "")

	f.Fuzz(func(t *testing.T, a, b string) {
		if got := HashEqual(a, b); got != (a == b) {
			t.Fatalf("HashEqual(%q, %q) = %v", a, b, got)
		}
		if HashEqual(a, b) != HashEqual(b, a) {
			t.Fatalf("HashEqual not symmetric for %q, %q", a, b)
		}
	})
}
