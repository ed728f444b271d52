package kvstore

import (
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	prefixPolicy      = []byte("policy/")
	prefixArrangement = []byte("arrangement/")
)

// Config holds the parameters of a Store.
type Config struct {
	// Path is the badger directory, ignored when InMemory is set.
	Path     string
	InMemory bool
	// SealingKey encrypts KFrags at rest, it must be chacha20poly1305.KeySize bytes long.
	SealingKey []byte
	Logger     *logrus.Logger
}

// Store persists policies for a policy.Manager, and arrangements for a node,
// in a badger database.
//
// KFrags are sealed with XChaCha20-Poly1305 before being written, everything
// else is stored in the clear.
type Store struct {
	db   *badger.DB
	aead cipher.AEAD
	log  *logrus.Logger
	enc  cbor.EncMode
}

// Open opens or creates the database.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if len(cfg.SealingKey) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("kvstore: sealing key must be %d bytes", chacha20poly1305.KeySize)
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("kvstore: no path provided in configuration")
	}
	aead, err := chacha20poly1305.NewX(cfg.SealingKey)
	if err != nil {
		return nil, fmt.Errorf("kvstore: %w", err)
	}
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("kvstore: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{cfg.Logger}).WithSyncWrites(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %q: %w", cfg.Path, err)
	}
	cfg.Logger.WithField("path", cfg.Path).Debug("kvstore opened")
	return &Store{db: db, aead: aead, log: cfg.Logger, enc: enc}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(key []byte, value interface{}) error {
	data, err := s.enc.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// get decodes the value at key into out, returning badger.ErrKeyNotFound if absent.
func (s *Store) get(key []byte, out interface{}) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, out)
		})
	})
}

// scan calls f with every value whose key starts with prefix.
func (s *Store) scan(prefix []byte, f func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(f); err != nil {
				return err
			}
		}
		return nil
	})
}

func key(prefix []byte, id [16]byte) []byte {
	return append(append([]byte(nil), prefix...), id[:]...)
}

// badgerLogger routes badger's messages through logrus, one level down.
type badgerLogger struct {
	log *logrus.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.log.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.log.Tracef(format, args...) }
