package persist

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestVerifyPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("first-gem"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	row := &LearnerRow{Name: "casey", PasswordHash: string(hash)}

	repo := &LearnerRepo{}
	if !repo.Verify(row, "first-gem") {
		t.Fatal("correct password rejected")
	}
	if repo.Verify(row, "wrong") {
		t.Fatal("wrong password accepted")
	}
	if repo.Verify(&LearnerRow{}, "first-gem") {
		t.Fatal("empty hash accepted")
	}
}
