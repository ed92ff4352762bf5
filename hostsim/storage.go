package hostsim

// storage is where committed rows and the catalog live between runs: bbolt
// when Options.Path is set, memory otherwise.
type storage interface {
	BeginTx(writable bool) (storageTx, error)
	Close() error
}

type storageTx interface {
	Writable() bool

	// Bucket returns a bucket, or nil if it doesn't exist. Use sub="" for a
	// root bucket.
	Bucket(name, sub string) storageBucket

	// CreateBucket creates a bucket, and its root for sub != "", if missing.
	CreateBucket(name, sub string) (storageBucket, error)

	Commit() error

	// Rollback aborts the transaction. It is safe to call after Commit.
	Rollback() error
}

// storageBucket is a sorted key-value collection.
type storageBucket interface {
	// Get returns nil for a missing key. The result is only valid during
	// the transaction.
	Get(key []byte) []byte
	Put(key, value []byte) error
	Delete(key []byte) error
	Cursor() storageCursor
	KeyCount() int
}

type storageCursor interface {
	First() (key, value []byte)
	Next() (key, value []byte)
}

const (
	catalogBucket = "catalog"
	rowsBucket    = "rows"
)
