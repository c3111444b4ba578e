package lease

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T, name string) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&Lease{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func stores(t *testing.T) map[string]func() Store {
	db := setupTestDB(t, t.Name())
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"db":     func() Store { return NewDBStore(db) },
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	for name, mk := range stores(t) {
		s := mk()
		if !s.Acquire("sweep", time.Minute) {
			t.Fatalf("%s: first acquire should succeed", name)
		}
		if s.Acquire("sweep", time.Minute) {
			t.Fatalf("%s: second acquire should fail while held", name)
		}
		// A different key is independent.
		if !s.Acquire("other", time.Minute) {
			t.Fatalf("%s: unrelated key should acquire", name)
		}
		s.Release("sweep")
		if !s.Acquire("sweep", time.Minute) {
			t.Fatalf("%s: acquire after release should succeed", name)
		}
	}
}

func TestConcurrentAcquireExactlyOneWins(t *testing.T) {
	s := NewMemoryStore()
	const runners = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < runners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Acquire("retry_transactions", time.Minute) {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
}

func TestExpiredLeaseIsReacquirable(t *testing.T) {
	past := time.Now().Add(-time.Hour)

	mem := NewMemoryStore()
	if !mem.Acquire("sweep", time.Minute) {
		t.Fatalf("memory: acquire: should succeed")
	}
	mem.shared.entries["sweep"] = memLease{owner: mem.owner, expiresAt: past}
	if !mem.Sibling().Acquire("sweep", time.Minute) {
		t.Fatalf("memory: expired lease should be reacquirable")
	}

	db := setupTestDB(t, t.Name())
	a, b := NewDBStore(db), NewDBStore(db)
	if !a.Acquire("sweep", time.Minute) {
		t.Fatalf("db: acquire: should succeed")
	}
	if b.Acquire("sweep", time.Minute) {
		t.Fatalf("db: held lease must not be stolen")
	}
	if err := db.Model(&Lease{}).Where("key = ?", "sweep").Update("expires_at", past).Error; err != nil {
		t.Fatalf("expire: %v", err)
	}
	if !b.Acquire("sweep", time.Minute) {
		t.Fatalf("db: expired lease should be taken over")
	}
}

func TestReleaseOnlyOwnLease(t *testing.T) {
	db := setupTestDB(t, t.Name())
	a, b := NewDBStore(db), NewDBStore(db)
	if !a.Acquire("sweep", time.Minute) {
		t.Fatalf("acquire: should succeed")
	}
	// b never held it; its release must not tear down a's lease.
	b.Release("sweep")
	if b.Acquire("sweep", time.Minute) {
		t.Fatalf("foreign release must not free the lease")
	}
	a.Release("sweep")
	if !b.Acquire("sweep", time.Minute) {
		t.Fatalf("owner release should free the lease")
	}
}

func TestStaleHolderReleaseLeavesTakeoverHeld(t *testing.T) {
	past := time.Now().Add(-time.Hour)

	a := NewMemoryStore()
	if !a.Acquire("sweep", time.Minute) {
		t.Fatalf("memory: acquire: should succeed")
	}
	a.shared.entries["sweep"] = memLease{owner: a.owner, expiresAt: past}
	b := a.Sibling()
	if !b.Acquire("sweep", time.Minute) {
		t.Fatalf("memory: expired lease should be taken over")
	}
	// a's lease expired and b took over; a's late release must not free it.
	a.Release("sweep")
	if a.Sibling().Acquire("sweep", time.Minute) {
		t.Fatalf("memory: stale release freed a live lease")
	}

	db := setupTestDB(t, t.Name())
	da, db2 := NewDBStore(db), NewDBStore(db)
	if !da.Acquire("sweep", time.Minute) {
		t.Fatalf("db: acquire: should succeed")
	}
	if err := db.Model(&Lease{}).Where("key = ?", "sweep").Update("expires_at", past).Error; err != nil {
		t.Fatalf("expire: %v", err)
	}
	if !db2.Acquire("sweep", time.Minute) {
		t.Fatalf("db: expired lease should be taken over")
	}
	da.Release("sweep")
	if NewDBStore(db).Acquire("sweep", time.Minute) {
		t.Fatalf("db: stale release freed a live lease")
	}
}
