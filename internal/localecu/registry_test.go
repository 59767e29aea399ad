package localecu

import (
	"path/filepath"
	"testing"
)

func TestMemRegistryClaimReleaseRoundTrip(t *testing.T) {
	r := NewRegistry()
	if err := r.Claim(1, 0, 0x20); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := r.Claim(1, 0, 0x20); err != nil {
		t.Fatalf("second Claim (shared): %v", err)
	}
	key := claimKey{ifindex: 1, addr: 0x20}
	if n := r.store.(*memStore).claim[key]; n != 2 {
		t.Fatalf("refcount = %d, want 2", n)
	}

	r.Release(1, 0, 0x20)
	if n := r.store.(*memStore).claim[key]; n != 1 {
		t.Fatalf("refcount after one release = %d, want 1", n)
	}
	r.Release(1, 0, 0x20)
	if _, ok := r.store.(*memStore).claim[key]; ok {
		t.Fatal("claim should be removed once refcount reaches zero")
	}
}

func TestMemRegistryReleaseWithoutClaimIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Release(1, 0, 0x20) // must not panic or go negative
}

func TestDurableRegistryPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ecu.db")

	r1, err := NewDurableRegistry(dbPath)
	if err != nil {
		t.Fatalf("NewDurableRegistry: %v", err)
	}
	if err := r1.Claim(3, 0xAA, 0x40); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := r1.store.(*boltStore).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2, err := NewDurableRegistry(dbPath)
	if err != nil {
		t.Fatalf("reopen NewDurableRegistry: %v", err)
	}
	defer r2.store.(*boltStore).Close()

	n, err := r2.store.incr(claimKey{ifindex: 3, name: 0xAA, addr: 0x40})
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if n != 2 {
		t.Fatalf("claim count after reopen+incr = %d, want 2 (1 persisted + 1 new)", n)
	}
}
