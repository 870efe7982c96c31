package hashing

import "testing"

func TestDigestHexFormat(t *testing.T) {
	d := DigestHex([]byte("hello"))
	if len(d) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(d))
	}
	// Known SHA-256 of "hello".
	if d != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("unexpected digest: %s", d)
	}
}

func TestHashRecordDeterministic(t *testing.T) {
	a := map[string]any{"from": "WH-A", "to": "WH-B", "qty": 10}
	b := map[string]any{"qty": 10, "to": "WH-B", "from": "WH-A"}

	ha, err := HashRecord(a)
	if err != nil {
		t.Fatalf("HashRecord failed: %v", err)
	}
	hb, err := HashRecord(b)
	if err != nil {
		t.Fatalf("HashRecord failed: %v", err)
	}
	if ha != hb {
		t.Fatalf("same logical record hashed differently: %s vs %s", ha, hb)
	}
}

func TestHashIdentityEmpty(t *testing.T) {
	if HashIdentity("") != "" {
		t.Fatal("empty identity must stay empty")
	}
	if HashIdentity("U1") == "" {
		t.Fatal("non-empty identity must hash")
	}
	if HashIdentity("U1") != HashIdentity("U1") {
		t.Fatal("identity hash must be stable")
	}
}
