package embedding

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketEmbeddings = []byte("embeddings")

// BoltCache persists embeddings keyed by model and content hash, so unchanged
// content is never paid for twice.
type BoltCache struct {
	db *bbolt.DB
}

type cachedEmbedding struct {
	Vector []float32 `json:"vector"`
	Tokens int       `json:"tokens"`
}

// OpenBoltCache opens or creates the cache database at path.
func OpenBoltCache(path string) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEmbeddings)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return &BoltCache{db: db}, nil
}

// Get returns the cached embedding for model and content hash.
func (c *BoltCache) Get(model, contentHash string) (*Embedding, bool) {
	var entry cachedEmbedding
	found := false
	_ = c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEmbeddings).Get(boltKey(model, contentHash))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}
		found = len(entry.Vector) > 0
		return nil
	})
	if !found {
		return nil, false
	}
	return &Embedding{Vector: entry.Vector, Tokens: entry.Tokens}, true
}

// Put stores emb for model and content hash.
func (c *BoltCache) Put(model, contentHash string, emb *Embedding) error {
	data, err := json.Marshal(cachedEmbedding{Vector: emb.Vector, Tokens: emb.Tokens})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).Put(boltKey(model, contentHash), data)
	})
}

// Len returns the number of cached embeddings.
func (c *BoltCache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the database.
func (c *BoltCache) Close() error {
	return c.db.Close()
}

func boltKey(model, contentHash string) []byte {
	return []byte(model + ":" + contentHash)
}
