package password

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestGenerateSaltIsRandomAndPrintable(t *testing.T) {
	h := NewHasher()

	a, err := h.GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt error: %v", err)
	}
	b, err := h.GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt error: %v", err)
	}
	if a == b {
		t.Fatal("expected two salts to differ")
	}

	raw, err := base64.StdEncoding.DecodeString(a)
	if err != nil {
		t.Fatalf("salt is not base64: %v", err)
	}
	if len(raw) < 32 {
		t.Fatalf("expected >= 32 bytes of salt, got %d", len(raw))
	}
}

func TestHashDeterministic(t *testing.T) {
	h := NewHasher()
	salt, err := h.GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt error: %v", err)
	}

	first, err := h.Hash("P@ssw0rd!", salt)
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	second, err := h.Hash("P@ssw0rd!", salt)
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if first != second {
		t.Fatal("expected identical hashes for identical input")
	}
	if !h.Equal(first, second) {
		t.Fatal("expected Equal to accept identical hashes")
	}
	if strings.Contains(first, "P@ssw0rd!") {
		t.Fatal("hash must not contain plaintext")
	}

	other, err := h.Hash("P@ssw0rd?", salt)
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if other == first || h.Equal(other, first) {
		t.Fatal("expected different passwords to hash differently")
	}
}

func TestHashDependsOnSalt(t *testing.T) {
	h := NewHasher()
	s1, _ := h.GenerateSalt()
	s2, _ := h.GenerateSalt()

	a, err := h.Hash("same-password", s1)
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := h.Hash("same-password", s2)
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatal("expected different salts to produce different hashes")
	}
}

func TestHashRejectsEmptySalt(t *testing.T) {
	h := NewHasher()
	if _, err := h.Hash("anything", ""); !errors.Is(err, ErrEmptySalt) {
		t.Fatalf("expected ErrEmptySalt, got %v", err)
	}
	if _, err := h.Hash("anything", "%%%not-base64"); !errors.Is(err, ErrInvalidSalt) {
		t.Fatalf("expected ErrInvalidSalt, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	h := NewHasher()
	salt, _ := h.GenerateSalt()
	stored, err := h.Hash("correct horse", salt)
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := h.Verify("correct horse", salt, stored)
	if err != nil || !ok {
		t.Fatalf("expected verify success, got ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("wrong horse", salt, stored)
	if err != nil || ok {
		t.Fatalf("expected verify failure, got ok=%v err=%v", ok, err)
	}
}

func TestEqualRejectsEmpty(t *testing.T) {
	h := NewHasher()
	if h.Equal("", "") {
		t.Fatal("empty verifiers must never compare equal")
	}
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       PolicyConfig
		candidate string
		wantValid bool
	}{
		{name: "defaults accept", cfg: PolicyConfig{MinLength: 7, MinNonAlphanumeric: 1}, candidate: "secret1!", wantValid: true},
		{name: "too short", cfg: PolicyConfig{MinLength: 10, MinNonAlphanumeric: 1}, candidate: "short1!", wantValid: false},
		{name: "missing special", cfg: PolicyConfig{MinLength: 7, MinNonAlphanumeric: 1}, candidate: "password1", wantValid: false},
		{name: "two specials required", cfg: PolicyConfig{MinLength: 1, MinNonAlphanumeric: 2}, candidate: "ab!c", wantValid: false},
		{name: "empty rejected", cfg: PolicyConfig{MinLength: 1}, candidate: "", wantValid: false},
		{name: "empty rejected by specials", cfg: PolicyConfig{MinNonAlphanumeric: 1}, candidate: "", wantValid: false},
		{name: "no rules accepts empty", cfg: PolicyConfig{}, candidate: "", wantValid: true},
		{name: "pattern full match", cfg: PolicyConfig{Pattern: `[a-z]+\d`}, candidate: "abc1", wantValid: true},
		{name: "pattern partial match rejected", cfg: PolicyConfig{Pattern: `[a-z]+\d`}, candidate: "abc1!", wantValid: false},
		{name: "length counts runes", cfg: PolicyConfig{MinLength: 4}, candidate: "ééé", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPolicy(tt.cfg)
			if err != nil {
				t.Fatalf("NewPolicy error: %v", err)
			}
			err = p.Validate(tt.candidate)
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid {
				if err == nil {
					t.Fatal("expected policy violation")
				}
				if !errors.Is(err, ErrPolicyViolation) {
					t.Fatalf("expected ErrPolicyViolation, got %v", err)
				}
			}
		})
	}
}

func TestNewPolicyRejectsBadPattern(t *testing.T) {
	if _, err := NewPolicy(PolicyConfig{Pattern: "("}); err == nil {
		t.Fatal("expected compile error")
	}
	if _, err := NewPolicy(PolicyConfig{MinLength: -1}); err == nil {
		t.Fatal("expected negative length error")
	}
}

func TestGenerateSatisfiesPolicy(t *testing.T) {
	p, err := NewPolicy(PolicyConfig{MinLength: 14, MinNonAlphanumeric: 2})
	if err != nil {
		t.Fatalf("NewPolicy error: %v", err)
	}

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		pw, err := Generate(14, 2)
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		if len(pw) != 14 {
			t.Fatalf("expected length 14, got %d", len(pw))
		}
		if err := p.Validate(pw); err != nil {
			t.Fatalf("generated password %q failed policy: %v", pw, err)
		}
		seen[pw] = struct{}{}
	}
	if len(seen) < 45 {
		t.Fatalf("expected generated passwords to be distinct, got %d unique of 50", len(seen))
	}
}

func TestGenerateRejectsBadArgs(t *testing.T) {
	if _, err := Generate(0, 0); err == nil {
		t.Fatal("expected error for zero length")
	}
	if _, err := Generate(4, 5); err == nil {
		t.Fatal("expected error for specials beyond length")
	}
}
