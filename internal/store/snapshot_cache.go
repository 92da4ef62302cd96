package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"surface/internal/types"
)

var bucketSnapshots = []byte("project_snapshots")

// SnapshotCache persists the last reconciled snapshot per project so a
// restarted client can show last known good state before its first refresh
// completes. It holds session data only; nothing about display preferences
// lands here.
type SnapshotCache struct {
	db *bolt.DB
}

type snapshotRecord struct {
	ProjectPath string           `json:"project_path"`
	SavedAt     time.Time        `json:"saved_at"`
	Sessions    []*types.Session `json:"sessions"`
}

func NewSnapshotCache(path string) (*SnapshotCache, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("snapshot cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SnapshotCache{db: db}, nil
}

// Save overwrites the cached snapshot for a project.
func (c *SnapshotCache) Save(projectPath string, sessions []*types.Session) error {
	if c == nil || c.db == nil {
		return nil
	}
	if strings.TrimSpace(projectPath) == "" {
		return errors.New("project path is required")
	}
	record := snapshotRecord{
		ProjectPath: projectPath,
		SavedAt:     time.Now().UTC(),
		Sessions:    sessions,
	}
	buf, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(projectPath), buf)
	})
}

// Load returns the cached snapshot for a project, reporting whether one was
// found.
func (c *SnapshotCache) Load(projectPath string) ([]*types.Session, bool, error) {
	if c == nil || c.db == nil {
		return nil, false, nil
	}
	var record snapshotRecord
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSnapshots).Get([]byte(projectPath))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	return record.Sessions, true, nil
}

// LoadAll returns every cached project snapshot, keyed by project path.
func (c *SnapshotCache) LoadAll() (map[string][]*types.Session, error) {
	if c == nil || c.db == nil {
		return map[string][]*types.Session{}, nil
	}
	out := map[string][]*types.Session{}
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, v []byte) error {
			var record snapshotRecord
			if err := json.Unmarshal(v, &record); err != nil {
				// A corrupt entry is dropped, not fatal: the next refresh
				// rewrites it.
				return nil
			}
			out[string(k)] = record.Sessions
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the cached snapshot for a project.
func (c *SnapshotCache) Delete(projectPath string) error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte(projectPath))
	})
}

func (c *SnapshotCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
