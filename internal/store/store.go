// Package store provides a thin bbolt wrapper for pitboss's local state.
//
// Only the session token and a small whitelist of UI preferences survive a
// restart. The reference-data cache is deliberately not stored here; it is
// rebuilt from the network on every session.
//
// Buckets:
//
//	session  the bearer token and when it was saved
//	prefs    whitelisted UI preferences (theme, sidebar)
//	_meta    schema version and created_at
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

var (
	bucketSession  = []byte("session")
	bucketPrefs    = []byte("prefs")
	bucketInternal = []byte("_meta")

	keyToken = []byte("token")
)

// AllBuckets lists every user-facing bucket for stats and clear operations.
var AllBuckets = []string{"session", "prefs"}

// PrefKeys is the whitelist of preferences that may be persisted.
var PrefKeys = []string{"theme", "sidebar"}

// ErrPrefNotAllowed is returned when a preference key is not whitelisted.
var ErrPrefNotAllowed = errors.New("preference key not allowed")

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

func openDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}
	return db, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSession, bucketPrefs, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Session ──────────────────────────────────────────────────────────────────

// Session is the stored authentication state.
type Session struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// PutToken saves the bearer token, stamping SavedAt.
func (s *Store) PutToken(token string) error {
	b, err := json.Marshal(Session{Token: token, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Put(keyToken, b)
	})
}

// Session returns the stored session.
// Returns (session, true, nil) if found, (zero, false, nil) if not found.
func (s *Store) Session() (Session, bool, error) {
	var sess Session
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSession).Get(keyToken)
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &sess)
	})
	if err != nil {
		return sess, false, err
	}
	return sess, sess.Token != "", nil
}

// Token returns the stored token or "".
func (s *Store) Token() string {
	sess, _, err := s.Session()
	if err != nil {
		return ""
	}
	return sess.Token
}

// DeleteToken removes the stored session.
func (s *Store) DeleteToken() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(keyToken)
	})
}

// ─── Preferences ──────────────────────────────────────────────────────────────

func allowedPref(key string) bool {
	for _, k := range PrefKeys {
		if k == key {
			return true
		}
	}
	return false
}

// SetPref stores a whitelisted preference.
func (s *Store) SetPref(key, value string) error {
	if !allowedPref(key) {
		return fmt.Errorf("%w: %q (allowed: %v)", ErrPrefNotAllowed, key, PrefKeys)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPrefs).Put([]byte(key), []byte(value))
	})
}

// Pref returns a preference value and whether it was set.
func (s *Store) Pref(key string) (string, bool, error) {
	var val []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketPrefs).Get([]byte(key)); v != nil {
			val = append([]byte(nil), v...)
		}
		return nil
	})
	return string(val), val != nil, err
}

// Prefs returns every stored preference.
func (s *Store) Prefs() (map[string]string, error) {
	out := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPrefs).ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all buckets, sorted by name.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var count int
			var bytes int64
			_ = b.ForEach(func(k, v []byte) error {
				count++
				bytes += int64(len(k) + len(v))
				return nil
			})
			stats = append(stats, BucketStats{Name: name, Count: count, Bytes: bytes})
		}
		return nil
	})
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	known := false
	for _, b := range AllBuckets {
		if b == name {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown bucket %q (buckets: %v)", name, AllBuckets)
	}
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites the database into a fresh file and swaps it in place,
// returning the file sizes before and after.
func (s *Store) Compact() (before, after int64, err error) {
	path := s.db.Path()
	if fi, statErr := os.Stat(path); statErr == nil {
		before = fi.Size()
	}

	tmpPath := path + ".compact"
	_ = os.Remove(tmpPath)
	dst, err := openDB(tmpPath)
	if err != nil {
		return before, 0, err
	}
	if err := bolt.Compact(dst, s.db, 64*1024); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return before, 0, fmt.Errorf("compacting: %w", err)
	}
	if err := dst.Close(); err != nil {
		return before, 0, err
	}
	if err := s.db.Close(); err != nil {
		return before, 0, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		// Reopen the original so the Store stays usable.
		if db, reopenErr := openDB(path); reopenErr == nil {
			s.db = db
		}
		return before, 0, fmt.Errorf("replacing db file: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return before, 0, err
	}
	s.db = db

	if fi, statErr := os.Stat(path); statErr == nil {
		after = fi.Size()
	}
	return before, after, nil
}
