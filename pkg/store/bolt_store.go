package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketTerms    = []byte("terms")
	bucketRegistry = []byte("registry")
	bucketMeta     = []byte("meta")

	metaKeyGoodTotal = []byte("good_total")
	metaKeySpamTotal = []byte("spam_total")
	metaKeySchema    = []byte("schema_version")
)

const schemaVersion = 1

// BoltStore is the default TermStore implementation: a single go.etcd.io/bbolt
// file providing the atomic write path, crash safety and OS-level exclusive
// writer lock. A hand-rolled LRU (lru.go) caches hot records write-through.
type BoltStore struct {
	db   *bolt.DB
	path string

	cacheMu sync.Mutex
	cache   *lruCache
}

// Open opens (creating if absent) a BoltStore at path, with a warm-record
// cache sized cacheSize.
func Open(path string, cacheSize int) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketTerms, bucketRegistry, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if meta.Get(metaKeySchema) == nil {
			if err := meta.Put(metaKeySchema, encodeInt64(schemaVersion)); err != nil {
				return err
			}
			if err := meta.Put(metaKeyGoodTotal, encodeInt64(0)); err != nil {
				return err
			}
			if err := meta.Put(metaKeySpamTotal, encodeInt64(0)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if cacheSize < 1 {
		cacheSize = 1000
	}

	return &BoltStore{db: db, path: path, cache: newLRUCache(cacheSize)}, nil
}

func encodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func decodeInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func encodeRecord(rec TermRecord) []byte {
	b := make([]byte, 24)
	binary.BigEndian.PutUint64(b[0:8], uint64(rec.GoodCount))
	binary.BigEndian.PutUint64(b[8:16], uint64(rec.SpamCount))
	binary.BigEndian.PutUint64(b[16:24], uint64(rec.LastUpdate))
	return b
}

func decodeRecord(b []byte) (TermRecord, bool) {
	if len(b) != 24 {
		return TermRecord{}, false
	}
	return TermRecord{
		GoodCount:  int64(binary.BigEndian.Uint64(b[0:8])),
		SpamCount:  int64(binary.BigEndian.Uint64(b[8:16])),
		LastUpdate: int64(binary.BigEndian.Uint64(b[16:24])),
	}, true
}

// Get implements TermStore.
func (s *BoltStore) Get(key string) (TermRecord, bool, error) {
	s.cacheMu.Lock()
	if rec, ok := s.cache.get(key); ok {
		s.cacheMu.Unlock()
		return rec, true, nil
	}
	s.cacheMu.Unlock()

	var rec TermRecord
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTerms).Get([]byte(key))
		if v == nil {
			return nil
		}
		rec, found = decodeRecord(v)
		return nil
	})
	if err != nil {
		return TermRecord{}, false, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	if found {
		s.cacheMu.Lock()
		s.cache.put(key, rec)
		s.cacheMu.Unlock()
	}
	return rec, found, nil
}

// BulkUpdate implements TermStore.
func (s *BoltStore) BulkUpdate(deltas map[string]Delta, now int64) error {
	if len(deltas) == 0 {
		return nil
	}

	updated := make(map[string]TermRecord, len(deltas))
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTerms)
		for key, d := range deltas {
			rec := TermRecord{}
			if v := b.Get([]byte(key)); v != nil {
				rec, _ = decodeRecord(v)
			}

			rec.GoodCount = clampNonNegative(rec.GoodCount + d.Good)
			rec.SpamCount = clampNonNegative(rec.SpamCount + d.Spam)
			rec.LastUpdate = now

			if err := b.Put([]byte(key), encodeRecord(rec)); err != nil {
				return err
			}
			updated[key] = rec
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}

	s.cacheMu.Lock()
	for key, rec := range updated {
		s.cache.put(key, rec)
	}
	s.cacheMu.Unlock()

	return nil
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// MessageKnown implements TermStore.
func (s *BoltStore) MessageKnown(digest string) (Label, bool, error) {
	var label Label
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRegistry).Get([]byte(digest))
		if v == nil {
			return nil
		}
		found = true
		label = Label(v[0])
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	return label, found, nil
}

// RegisterMessage implements TermStore.
func (s *BoltStore) RegisterMessage(digest string, label Label) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		registry := tx.Bucket(bucketRegistry)
		meta := tx.Bucket(bucketMeta)

		existing := registry.Get([]byte(digest))
		switch {
		case existing == nil:
			if err := bumpGlobal(meta, label, 1); err != nil {
				return err
			}
		case Label(existing[0]) != label:
			if err := bumpGlobal(meta, Label(existing[0]), -1); err != nil {
				return err
			}
			if err := bumpGlobal(meta, label, 1); err != nil {
				return err
			}
		default:
			return nil // same label, no-op
		}

		return registry.Put([]byte(digest), []byte{byte(label)})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	return nil
}

// UnregisterMessage implements TermStore.
func (s *BoltStore) UnregisterMessage(digest string) (Label, error) {
	var prior Label
	err := s.db.Update(func(tx *bolt.Tx) error {
		registry := tx.Bucket(bucketRegistry)
		meta := tx.Bucket(bucketMeta)

		existing := registry.Get([]byte(digest))
		if existing == nil {
			return ErrNotFound
		}
		prior = Label(existing[0])

		if err := bumpGlobal(meta, prior, -1); err != nil {
			return err
		}
		return registry.Delete([]byte(digest))
	})
	if err != nil {
		if err == ErrNotFound {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	return prior, nil
}

func bumpGlobal(meta *bolt.Bucket, label Label, delta int64) error {
	key := metaKeyGoodTotal
	if label == Spam {
		key = metaKeySpamTotal
	}
	current := decodeInt64(meta.Get(key))
	current = clampNonNegative(current + delta)
	return meta.Put(key, encodeInt64(current))
}

// Globals implements TermStore.
func (s *BoltStore) Globals() (int64, int64, error) {
	var good, spam int64
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		good = decodeInt64(meta.Get(metaKeyGoodTotal))
		spam = decodeInt64(meta.Get(metaKeySpamTotal))
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	return good, spam, nil
}

// Cleanup implements TermStore.
func (s *BoltStore) Cleanup(maxCount int64, maxAgeDays int, now int64) (int64, error) {
	cutoff := now - int64(maxAgeDays)*86400
	var removed int64

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTerms)
		c := b.Cursor()

		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			rec, ok := decodeRecord(v)
			if !ok {
				continue
			}
			ageOK := maxAgeDays == 0 || rec.LastUpdate < cutoff
			if rec.GoodCount+rec.SpamCount <= maxCount && ageOK {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}

		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}

	if removed > 0 {
		s.cacheMu.Lock()
		s.cache.clear()
		s.cacheMu.Unlock()
	}

	return removed, nil
}

// Purge implements TermStore.
func (s *BoltStore) Purge(maxCount int64) (int64, error) {
	var removed int64

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTerms)
		c := b.Cursor()

		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			rec, ok := decodeRecord(v)
			if !ok {
				continue
			}
			if rec.GoodCount+rec.SpamCount < maxCount {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}

		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}

	if removed > 0 {
		s.cacheMu.Lock()
		s.cache.clear()
		s.cacheMu.Unlock()
	}

	return removed, nil
}

// Export implements TermStore.
func (s *BoltStore) Export(fn func(Entry) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTerms).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			rec, ok := decodeRecord(v)
			if !ok {
				continue
			}
			if err := fn(Entry{Key: string(k), Good: rec.GoodCount, Spam: rec.SpamCount, LastUpdate: rec.LastUpdate}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Import implements TermStore.
func (s *BoltStore) Import(entries []Entry, now int64) (int64, error) {
	var applied int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTerms)
		for _, e := range entries {
			last := e.LastUpdate
			if last == 0 {
				last = now
			}
			rec := TermRecord{GoodCount: clampNonNegative(e.Good), SpamCount: clampNonNegative(e.Spam), LastUpdate: last}
			if err := b.Put([]byte(e.Key), encodeRecord(rec)); err != nil {
				return err
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}

	s.cacheMu.Lock()
	s.cache.clear()
	s.cacheMu.Unlock()

	return applied, nil
}

// Vacuum implements TermStore. bbolt has no in-place compaction API; vacuum
// copies live data into a fresh file and swaps it in, the standard bbolt
// compaction recipe.
func (s *BoltStore) Vacuum() error {
	tmpPath := s.path + ".compact"
	dst, err := bolt.Open(tmpPath, 0o644, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	err = s.db.View(func(tx *bolt.Tx) error {
		return dst.Update(func(dtx *bolt.Tx) error {
			return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
				nb, err := dtx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return b.ForEach(func(k, v []byte) error {
					return nb.Put(append([]byte(nil), k...), append([]byte(nil), v...))
				})
			})
		})
	})
	dst.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	db, err := bolt.Open(s.path, 0o644, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.db = db
	return s.writeMetaMirror()
}

// writeMetaMirror writes an advisory meta.json sidecar next to the bbolt
// file. The store's own bbolt meta bucket remains authoritative; this file
// is for human inspection only.
func (s *BoltStore) writeMetaMirror() error {
	good, spam, err := s.Globals()
	if err != nil {
		return nil // advisory only; never fail the caller for this
	}
	mirror := struct {
		SchemaVersion int   `json:"schema_version"`
		GoodTotal     int64 `json:"good_message_count"`
		SpamTotal     int64 `json:"spam_message_count"`
	}{SchemaVersion: schemaVersion, GoodTotal: good, SpamTotal: spam}

	data, err := json.MarshalIndent(mirror, "", "  ")
	if err != nil {
		return nil
	}
	_ = os.WriteFile(filepath.Join(filepath.Dir(s.path), "meta.json"), data, 0o644)
	return nil
}

// Close implements TermStore. Idempotent.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	_ = s.writeMetaMirror()
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

var _ TermStore = (*BoltStore)(nil)
