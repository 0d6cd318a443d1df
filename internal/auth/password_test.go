package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// Tests use bcrypt.MinCost so the suite stays fast; the logic under test is
// identical at any cost.
func newTestPasswordService() *PasswordService {
	return newPasswordServiceWithCost(bcrypt.MinCost)
}

func TestHashAndVerify(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash must not equal the plaintext password")
	}

	ok, err := ps.Verify(hash, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !ok {
		t.Error("Verify() = false for the right password, want true")
	}

	ok, err = ps.Verify(hash, "wrong password")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if ok {
		t.Error("Verify() = true for the wrong password, want false")
	}
}

func TestHash_SaltsDiffer(t *testing.T) {
	ps := newTestPasswordService()

	h1, err := ps.Hash("same password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	h2, err := ps.Hash("same password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if h1 == h2 {
		t.Error("two hashes of the same password should differ (random salt)")
	}
}

func TestHash_RejectsShortPassword(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash("short"); err == nil {
		t.Fatalf("Hash() should reject passwords under %d characters", MinPasswordLength)
	}
}

func TestHash_RejectsOversizedPassword(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("x", 73)); err == nil {
		t.Fatal("Hash() should reject passwords over 72 bytes")
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Verify("not-a-bcrypt-hash", "whatever"); err == nil {
		t.Fatal("Verify() should error on a malformed hash")
	}
}
