package db

import "testing"

func TestMigrationNamesSorted(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected embedded migrations, got %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("expected sorted migrations, got %v", names)
		}
	}
	if names[0] != "0001_auth_core.up.sql" {
		t.Fatalf("expected first migration 0001_auth_core.up.sql, got %s", names[0])
	}
}

func TestChecksumHexStable(t *testing.T) {
	a := checksumHex([]byte("select 1"))
	b := checksumHex([]byte("select 1"))
	c := checksumHex([]byte("select 2"))
	if a != b {
		t.Fatalf("expected stable checksum")
	}
	if a == c {
		t.Fatalf("expected different checksum for different content")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}
