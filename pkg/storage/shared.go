package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	bolt "go.etcd.io/bbolt"

	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
)

type txCtxKey struct{}

// Store wraps lingle's bolt database
type Store struct {
	db *bolt.DB
}

// Open opens (and if necessary creates) the database at dbPath
func Open(dbPath string) (*Store, error) {
	err := os.MkdirAll(filepath.Dir(dbPath), 0700)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to create directory for %s", dbPath)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		if eris.Is(err, bolt.ErrTimeout) {
			return nil, exitcode.Errorf(exitcode.State, "%s is locked. Is another lingle process running?", dbPath)
		}
		return nil, eris.Wrapf(err, "Failed to open %s", dbPath)
	}

	buckets := [][]byte{settingsBucket, appsBucket, stampsBucket}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			_, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		db.Close()
		return nil, eris.Wrap(err, "Failed to initialize buckets")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func CtxWithTx(ctx context.Context, tx *bolt.Tx) context.Context {
	return context.WithValue(ctx, txCtxKey{}, tx)
}

func TxFromCtx(ctx context.Context) *bolt.Tx {
	val := ctx.Value(txCtxKey{})
	if val == nil {
		return nil
	}
	return val.(*bolt.Tx)
}

// BatchUpdate runs callback inside a writable transaction. Store methods called with the returned context join it.
func (s *Store) BatchUpdate(ctx context.Context, callback func(context.Context) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return callback(CtxWithTx(ctx, tx))
	})
}

func (s *Store) BatchRead(ctx context.Context, callback func(context.Context) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return callback(CtxWithTx(ctx, tx))
	})
}

func (s *Store) view(ctx context.Context, fn func(*bolt.Tx) error) error {
	if tx := TxFromCtx(ctx); tx != nil {
		return fn(tx)
	}
	return s.db.View(fn)
}

func (s *Store) update(ctx context.Context, fn func(*bolt.Tx) error) error {
	if tx := TxFromCtx(ctx); tx != nil {
		if !tx.Writable() {
			return eris.New("Can't write inside a read-only transaction")
		}
		return fn(tx)
	}
	return s.db.Update(fn)
}
