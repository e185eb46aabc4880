package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

const workKeyPrefix = "work/"

// BadgerBackend stores work item statuses in a local BadgerDB directory.
// It lets a dry run or an offline run track progress without the database.
type BadgerBackend struct {
	db *badger.DB
}

var _ Backend = (*BadgerBackend)(nil)

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l badgerLogger) Errorf(msg string, args ...any)   { l.log.Errorf(strings.TrimSpace(msg), args...) }
func (l badgerLogger) Warningf(msg string, args ...any) { l.log.Warnf(strings.TrimSpace(msg), args...) }
func (l badgerLogger) Infof(msg string, args ...any)    { l.log.Debugf(strings.TrimSpace(msg), args...) }
func (l badgerLogger) Debugf(msg string, args ...any)   { l.log.Debugf(strings.TrimSpace(msg), args...) }

// OpenBadger opens (creating when needed) a BadgerDB at dir. An empty dir
// opens an in-memory database.
func OpenBadger(dir string) (*BadgerBackend, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "tracker: create %s", dir)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = badgerLogger{log: zap.S().Named("badger")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: open badger")
	}
	return &BadgerBackend{db: db}, nil
}

// Close closes the underlying database.
func (b *BadgerBackend) Close() error {
	return eris.Wrap(b.db.Close(), "tracker: close badger")
}

func workKey(id string) []byte {
	return []byte(fmt.Sprintf("%s%s", workKeyPrefix, id))
}

func (b *BadgerBackend) LoadStatuses(_ context.Context) (map[string]model.Status, error) {
	out := make(map[string]model.Status)

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(workKeyPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var item model.WorkItem
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "tracker: decode %s", it.Item().Key())
		}
		out[item.ID] = item.Status
	}
	return out, nil
}

func (b *BadgerBackend) SaveStatus(_ context.Context, item model.WorkItem) error {
	val, err := json.Marshal(item)
	if err != nil {
		return eris.Wrap(err, "tracker: encode work item")
	}

	txn := b.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Set(workKey(item.ID), val); err != nil {
		return eris.Wrapf(err, "tracker: set %s", item.ID)
	}
	return eris.Wrapf(txn.Commit(), "tracker: commit %s", item.ID)
}

// Get returns the stored work item for id, or nil when absent.
func (b *BadgerBackend) Get(_ context.Context, id string) (*model.WorkItem, error) {
	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	it, err := txn.Get(workKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "tracker: get %s", id)
	}

	var item model.WorkItem
	if err := it.Value(func(val []byte) error { return json.Unmarshal(val, &item) }); err != nil {
		return nil, eris.Wrapf(err, "tracker: decode %s", id)
	}
	return &item, nil
}
