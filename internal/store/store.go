// Package store provides the persistent per-user key-value stores:
// usage limits, access-window expiries, saved emails, settings profiles
// and one-time markers.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Unlimited is the sentinel for "no usage limit on record".
const Unlimited = -1

var (
	bucketLimits   = []byte("user_limits")
	bucketAccess   = []byte("user_access")
	bucketEmails   = []byte("user_emails")
	bucketProfiles = []byte("user_settings")
	bucketMarkers  = []byte("markers")
)

// Profile holds the per-user settings saved by the settings flow. The
// wizard reads it as a default source; only the settings flow writes it.
type Profile struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Store is the bbolt-backed persistence layer. Reads degrade to the
// "absent" value on failure (logged), so a broken store behaves like an
// empty one; writes report their error to the caller.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the store at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketLimits, bucketAccess, bucketEmails, bucketProfiles, bucketMarkers} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetLimit returns the remaining-use counter for a user, or Unlimited
// when none is on record.
func (s *Store) GetLimit(ctx context.Context, userID string) int {
	limit := Unlimited
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLimits).Get([]byte(userID))
		if data == nil {
			return nil
		}
		n, err := strconv.Atoi(string(data))
		if err != nil {
			return fmt.Errorf("corrupt limit value %q: %w", data, err)
		}
		limit = n
		return nil
	})
	if err != nil {
		s.logger.Error("limit read failed, treating as unlimited", "user", userID, "error", err)
		return Unlimited
	}
	return limit
}

// SetLimit records the remaining-use counter for a user.
func (s *Store) SetLimit(ctx context.Context, userID string, limit int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLimits).Put([]byte(userID), []byte(strconv.Itoa(limit)))
	})
}

// ResetLimit removes the counter for a user, restoring unlimited uses.
func (s *Store) ResetLimit(ctx context.Context, userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLimits).Delete([]byte(userID))
	})
}

// ResetAllLimits removes every recorded counter.
func (s *Store) ResetAllLimits(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketLimits); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketLimits)
		return err
	})
}

// DecrementLimit decrements a user's counter by one, floored at zero.
// A missing record or the Unlimited sentinel is left unchanged. Returns
// the counter after the operation. The read-modify-write runs in one
// transaction so two racing completions cannot double-charge past the
// floor.
func (s *Store) DecrementLimit(ctx context.Context, userID string) int {
	remaining := Unlimited
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketLimits)
		data := bucket.Get([]byte(userID))
		if data == nil {
			return nil
		}
		n, err := strconv.Atoi(string(data))
		if err != nil {
			return fmt.Errorf("corrupt limit value %q: %w", data, err)
		}
		if n > 0 {
			n--
			if err := bucket.Put([]byte(userID), []byte(strconv.Itoa(n))); err != nil {
				return err
			}
		}
		remaining = n
		return nil
	})
	if err != nil {
		s.logger.Error("limit decrement failed", "user", userID, "error", err)
		return Unlimited
	}
	return remaining
}

// GetAccessExpiry returns the access-window expiry for a user. The
// second return is false when no window is on record (unlimited access).
func (s *Store) GetAccessExpiry(ctx context.Context, userID string) (time.Time, bool) {
	var expiry time.Time
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAccess).Get([]byte(userID))
		if data == nil {
			return nil
		}
		t, err := time.Parse(time.RFC3339, string(data))
		if err != nil {
			return fmt.Errorf("corrupt expiry value %q: %w", data, err)
		}
		expiry = t
		found = true
		return nil
	})
	if err != nil {
		s.logger.Error("access read failed, treating as unlimited", "user", userID, "error", err)
		return time.Time{}, false
	}
	return expiry, found
}

// SetAccessExpiry records the access-window expiry for a user.
func (s *Store) SetAccessExpiry(ctx context.Context, userID string, expiry time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccess).Put([]byte(userID), []byte(expiry.Format(time.RFC3339)))
	})
}

// GetEmail returns the saved email shortcut for a user, or "".
func (s *Store) GetEmail(ctx context.Context, userID string) string {
	var email string
	err := s.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(bucketEmails).Get([]byte(userID)); data != nil {
			email = string(data)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("email read failed", "user", userID, "error", err)
		return ""
	}
	return email
}

// SetEmail records the email shortcut for a user.
func (s *Store) SetEmail(ctx context.Context, userID, email string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEmails).Put([]byte(userID), []byte(email))
	})
}

// GetProfile returns the stored settings profile for a user, or nil when
// none is on record.
func (s *Store) GetProfile(ctx context.Context, userID string) *Profile {
	var profile *Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProfiles).Get([]byte(userID))
		if data == nil {
			return nil
		}
		p := &Profile{}
		if err := json.Unmarshal(data, p); err != nil {
			return fmt.Errorf("corrupt profile: %w", err)
		}
		profile = p
		return nil
	})
	if err != nil {
		s.logger.Error("profile read failed, treating as absent", "user", userID, "error", err)
		return nil
	}
	return profile
}

// SetProfile overwrites the settings profile for a user wholesale.
func (s *Store) SetProfile(ctx context.Context, userID string, profile *Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProfiles).Put([]byte(userID), data)
	})
}

// HasMarker reports whether a one-time marker is set.
func (s *Store) HasMarker(ctx context.Context, key string) bool {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketMarkers).Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		s.logger.Error("marker read failed", "key", key, "error", err)
		return false
	}
	return found
}

// SetMarker sets a one-time marker with the current timestamp.
func (s *Store) SetMarker(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMarkers).Put([]byte(key), []byte(time.Now().Format(time.RFC3339)))
	})
}

// ClearMarkers removes every marker.
func (s *Store) ClearMarkers(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketMarkers); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketMarkers)
		return err
	})
}
