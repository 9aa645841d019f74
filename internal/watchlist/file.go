// Package watchlist maintains the JSON file the external token-refresh
// scheduler reads to know which integrations to keep warm.
package watchlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

// defaultMode applies when the document does not exist yet.
const defaultMode fs.FileMode = 0o644

// IDsKey is the document key holding the watched integration ids.
const IDsKey = "integracoes"

// Locker serializes writers across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// FileWatchList rewrites the scheduler's document in place. Keys it does not
// own are carried over untouched.
type FileWatchList struct {
	path    string
	lockKey string
	locker  Locker
	logger  zerolog.Logger
	mu      sync.Mutex
}

// NewFileWatchList returns an adapter for path. locker may be nil for a single instance.
func NewFileWatchList(path, lockKey string, locker Locker, logger zerolog.Logger) *FileWatchList {
	return &FileWatchList{
		path:    path,
		lockKey: lockKey,
		locker:  locker,
		logger:  logger.With().Str("component", "watch_list").Logger(),
	}
}

func (w *FileWatchList) Add(ctx context.Context, id string) error {
	return w.update(ctx, func(ids []string) ([]string, bool) {
		if slices.Contains(ids, id) {
			return ids, false
		}
		return append(ids, id), true
	})
}

func (w *FileWatchList) Remove(ctx context.Context, id string) error {
	return w.update(ctx, func(ids []string) ([]string, bool) {
		if !slices.Contains(ids, id) {
			return ids, false
		}
		return slices.DeleteFunc(ids, func(s string) bool { return s == id }), true
	})
}

// IDs returns the ids currently in the file.
func (w *FileWatchList) IDs() ([]string, error) {
	doc, err := w.read()
	if err != nil {
		return nil, err
	}
	return idsOf(doc)
}

func (w *FileWatchList) update(ctx context.Context, change func([]string) ([]string, bool)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	apply := func(context.Context) error {
		doc, err := w.read()
		if err != nil {
			return err
		}
		ids, err := idsOf(doc)
		if err != nil {
			return err
		}
		ids, changed := change(ids)
		if !changed {
			return nil
		}
		raw, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		doc[IDsKey] = raw
		return w.write(doc)
	}

	if w.locker == nil {
		return apply(ctx)
	}
	return w.locker.WithLock(ctx, w.lockKey, apply)
}

func (w *FileWatchList) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		w.logger.Info().Str("path", w.path).Msg("Watch list file missing, starting empty")
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read watch list: %w", err)
	}

	doc := map[string]json.RawMessage{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse watch list %s: %w", w.path, err)
	}
	return doc, nil
}

// write replaces the file through a temp file in the same directory. The
// existing permissions are kept so the scheduler can still read it.
func (w *FileWatchList) write(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	mode := defaultMode
	if info, err := os.Stat(w.path); err == nil {
		mode = info.Mode().Perm()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat watch list: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".watchlist-*")
	if err != nil {
		return fmt.Errorf("write watch list: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write watch list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write watch list: %w", err)
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return fmt.Errorf("write watch list: %w", err)
	}
	return os.Rename(tmp.Name(), w.path)
}

func idsOf(doc map[string]json.RawMessage) ([]string, error) {
	raw, ok := doc[IDsKey]
	if !ok || string(raw) == "null" {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("parse %s: %w", IDsKey, err)
	}
	return ids, nil
}
