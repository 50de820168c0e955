package api

import "testing"

func TestPasswordHashRoundtrip(t *testing.T) {
	hash, err := hashPassword("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "secret1" {
		t.Fatal("password stored in plaintext")
	}
	if !checkPassword(hash, "secret1") {
		t.Fatal("expected matching password to verify")
	}
	if checkPassword(hash, "secret2") {
		t.Fatal("expected mismatching password to fail")
	}
}

func TestPasswordHashesAreSalted(t *testing.T) {
	first, err := hashPassword("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := hashPassword("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct salts per hash")
	}
}
