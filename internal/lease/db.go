package lease

import (
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lease is one held key. The primary key on Key makes Create the atomic
// create-with-expiry step: any store with that property qualifies, a SQL
// unique constraint included.
type Lease struct {
	Key       string    `gorm:"primaryKey;size:128"`
	Owner     string    `gorm:"size:36;not null"`
	ExpiresAt time.Time `gorm:"not null"`
}

// DBStore keeps leases in the billing database, so the fleet needs no extra
// infrastructure for mutual exclusion.
type DBStore struct {
	db    *gorm.DB
	owner string
	now   func() time.Time
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db, owner: uuid.NewString(), now: time.Now}
}

func (s *DBStore) Acquire(key string, ttl time.Duration) bool {
	now := s.now().UTC()
	// Reap an expired holder first; the Create below stays the atomic step,
	// so two reapers racing still yield exactly one new holder.
	s.db.Where("key = ? AND expires_at <= ?", key, now).Delete(&Lease{})
	err := s.db.Create(&Lease{Key: key, Owner: s.owner, ExpiresAt: now.Add(ttl)}).Error
	return err == nil
}

func (s *DBStore) Release(key string) {
	// Only our own, unexpired lease is released; a TTL takeover by another
	// runner must not be torn down late.
	err := s.db.Where("key = ? AND owner = ?", key, s.owner).Delete(&Lease{}).Error
	if err != nil {
		log.Printf("[Lease] release %s failed: %v", key, err)
	}
}
