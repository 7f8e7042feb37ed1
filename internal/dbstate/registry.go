package dbstate

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSavepoints = []byte("savepoints")
	bucketSchemas    = []byte("schemas")
	bucketDatabases  = []byte("databases")
	bucketSnapshots  = []byte("snapshots")
)

// SavepointRecord tracks one outstanding savepoint.
type SavepointRecord struct {
	ID        string
	CreatedAt time.Time
	WorkerID  string
}

// NamedRecord tracks one outstanding schema, database, or snapshot.
type NamedRecord struct {
	Name      string
	CreatedAt time.Time
	WorkerID  string
}

// registry persists the set of entities a Manager currently owns in a
// bbolt file under the Manager's data directory, so that cleanup() can
// enumerate everything still tracked. The Environment gives each
// Manager a fresh temporary directory, so no run reads another run's
// records; closing the Manager does not delete the file.
type registry struct {
	db *bolt.DB
}

func newRegistry(dataDir string) (*registry, error) {
	path := filepath.Join(dataDir, "dbstate.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSavepoints, bucketSchemas, bucketDatabases, bucketSnapshots} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &registry{db: db}, nil
}

func (r *registry) close() error { return r.db.Close() }

func (r *registry) putSavepoint(rec SavepointRecord) error {
	return r.put(bucketSavepoints, rec.ID, rec)
}

func (r *registry) deleteSavepoint(id string) error {
	return r.delete(bucketSavepoints, id)
}

func (r *registry) listSavepoints() ([]SavepointRecord, error) {
	var out []SavepointRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSavepoints).ForEach(func(k, v []byte) error {
			var rec SavepointRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

func (r *registry) putNamed(bucket []byte, rec NamedRecord) error {
	return r.put(bucket, rec.Name, rec)
}

func (r *registry) deleteNamed(bucket []byte, name string) error {
	return r.delete(bucket, name)
}

func (r *registry) hasNamed(bucket []byte, name string) (bool, error) {
	var found bool
	err := r.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucket).Get([]byte(name)) != nil
		return nil
	})
	return found, err
}

func (r *registry) listNamed(bucket []byte) ([]NamedRecord, error) {
	var out []NamedRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var rec NamedRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

func (r *registry) put(bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (r *registry) delete(bucket []byte, key string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}
