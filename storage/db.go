package storage

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Database is the key-value store shared by the state trie and the auxiliary
// tables (committed state roots, gateway metadata). Both the in-memory and the
// persistent backends expose the same trie node database so trie roots written
// through one handle are readable through another.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	TrieDB() *triedb.Database
	Close()
}

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = fmt.Errorf("storage: key not found")

type ethBacked struct {
	disk ethdb.Database

	once   sync.Once
	trieDB *triedb.Database
}

func (b *ethBacked) Put(key []byte, value []byte) error {
	return b.disk.Put(key, value)
}

func (b *ethBacked) Get(key []byte) ([]byte, error) {
	ok, err := b.disk.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return b.disk.Get(key)
}

func (b *ethBacked) Has(key []byte) (bool, error) {
	return b.disk.Has(key)
}

func (b *ethBacked) Delete(key []byte) error {
	return b.disk.Delete(key)
}

// TrieDB lazily creates the hash-based trie node database on top of the disk
// store. The same handle is returned for the lifetime of the database.
func (b *ethBacked) TrieDB() *triedb.Database {
	b.once.Do(func() {
		b.trieDB = triedb.NewDatabase(b.disk, nil)
	})
	return b.trieDB
}

func (b *ethBacked) close() {
	if b.trieDB != nil {
		_ = b.trieDB.Close()
	}
	_ = b.disk.Close()
}

// --- In-Memory DB (for testing) ---

// MemDB keeps every key and trie node in process memory.
type MemDB struct {
	ethBacked
}

func NewMemDB() *MemDB {
	return &MemDB{ethBacked: ethBacked{disk: rawdb.NewMemoryDatabase()}}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	db.close()
}

// --- Persistent DB ---

// LevelDBOptions tunes the persistent backend.
type LevelDBOptions struct {
	CacheMB   int
	Handles   int
	Namespace string
	ReadOnly  bool
}

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	ethBacked
	path string
}

// NewLevelDB creates or opens a LevelDB database at the specified path with
// default options.
func NewLevelDB(path string) (*LevelDB, error) {
	return NewLevelDBWithOptions(path, LevelDBOptions{})
}

// NewLevelDBWithOptions opens a LevelDB database applying the supplied cache
// and file handle budgets.
func NewLevelDBWithOptions(path string, opts LevelDBOptions) (*LevelDB, error) {
	if path == "" {
		return nil, fmt.Errorf("leveldb: path must not be empty")
	}
	cache := opts.CacheMB
	if cache <= 0 {
		cache = 16
	}
	handles := opts.Handles
	if handles <= 0 {
		handles = 64
	}
	kv, err := leveldb.NewCustom(path, opts.Namespace, func(o *opt.Options) {
		o.OpenFilesCacheCapacity = handles
		o.BlockCacheCapacity = cache / 2 * opt.MiB
		o.WriteBuffer = cache / 4 * opt.MiB
		o.ReadOnly = opts.ReadOnly
	})
	if err != nil {
		return nil, err
	}
	return &LevelDB{ethBacked: ethBacked{disk: rawdb.NewDatabase(kv)}, path: path}, nil
}

// Path returns the directory backing the database.
func (ldb *LevelDB) Path() string {
	return ldb.path
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.close()
}
