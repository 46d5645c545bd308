package store

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hpungsan/ctxbridge/internal/db"
)

// changeDebounce coalesces the burst of WAL writes a single commit produces.
const changeDebounce = 25 * time.Millisecond

// SQLiteBackend stores values in the kv table of ctxbridge.db. Writes by
// other processes are noticed through fsnotify events on the database files.
type SQLiteBackend struct {
	db     *sql.DB
	dir    string
	logger *slog.Logger
}

// NewSQLiteBackend wraps a database opened with db.Init(dir).
func NewSQLiteBackend(database *sql.DB, dir string, logger *slog.Logger) *SQLiteBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteBackend{db: database, dir: dir, logger: logger}
}

func (s *SQLiteBackend) Load(ctx context.Context, key string) (Entry, error) {
	rec, found, err := db.Get(ctx, s.db, key)
	if err != nil || !found {
		return Entry{}, err
	}
	return Entry{Value: rec.Value, Version: rec.Version}, nil
}

func (s *SQLiteBackend) Save(ctx context.Context, key string, value []byte, writer string) (int64, error) {
	return db.Put(ctx, s.db, key, value, writer)
}

func (s *SQLiteBackend) CompareAndSave(ctx context.Context, key string, expected int64, value []byte, writer string) (int64, error) {
	version, ok, err := db.CompareAndPut(ctx, s.db, key, expected, value, writer)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrVersionConflict
	}
	return version, nil
}

// Watch snapshots the current key versions, then rescans after each batch of
// file events and reports keys whose version moved.
func (s *SQLiteBackend) Watch(ctx context.Context, fn func(Change)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, err
	}

	feed := &versionFeed{}
	if err := feed.scan(ctx, s.db, nil); err != nil {
		watcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer watcher.Close()
		s.follow(ctx, watcher, feed, fn)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}

func (s *SQLiteBackend) follow(ctx context.Context, watcher *fsnotify.Watcher, feed *versionFeed, fn func(Change)) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if isDatabaseWrite(event) {
				timer.Reset(changeDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("fsnotify error", "error", err)
		case <-timer.C:
			if err := feed.scan(ctx, s.db, fn); err != nil && ctx.Err() == nil {
				s.logger.Warn("change scan failed", "error", err)
			}
		}
	}
}

// isDatabaseWrite reports whether event touched ctxbridge.db or its WAL.
func isDatabaseWrite(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	base := filepath.Base(event.Name)
	return base == db.FileName || strings.HasPrefix(base, db.FileName+"-")
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// versionFeed remembers the last seen version of every key.
type versionFeed struct {
	seen map[string]int64
}

// scan emits a Change for every key whose version is newer than last seen.
// A nil fn only records the snapshot.
func (f *versionFeed) scan(ctx context.Context, q db.Querier, fn func(Change)) error {
	versions, err := db.Versions(ctx, q)
	if err != nil {
		return err
	}
	if f.seen == nil {
		f.seen = make(map[string]int64, len(versions))
	}
	for key, rec := range versions {
		if rec.Version <= f.seen[key] {
			continue
		}
		f.seen[key] = rec.Version
		if fn != nil {
			fn(Change{Key: key, Version: rec.Version, Writer: rec.Writer})
		}
	}
	return nil
}
