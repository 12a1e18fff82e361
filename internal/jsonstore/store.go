// Package jsonstore persists one JSON value per collection in a single
// file, with atomic writes, corruption recovery and an mtime-keyed read
// cache. It assumes a single writer process; concurrent access within
// the process is serialized per collection.
package jsonstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/medsupply/pkg/logger"
)

// Collection is a file-backed JSON document of type T. T is typically a
// slice of records, or a plain struct for singleton collections such as
// settings.
type Collection[T any] struct {
	dir  string
	name string
	path string
	log  logger.Logger

	defaultJSON []byte

	mu         sync.Mutex
	cache      []byte
	cacheMtime time.Time
	hasCache   bool

	diskReads atomic.Int64
}

// New builds a Collection stored at <dir>/<name>.json. The default value
// seeds an absent file and is the base every read is unmarshaled onto,
// so missing keys in stored objects fall back to their defaults.
func New[T any](dir, name string, defaultValue T, log logger.Logger) (*Collection[T], error) {
	raw, err := json.Marshal(defaultValue)
	if err != nil {
		return nil, fmt.Errorf("jsonstore %s: marshal default: %w", name, err)
	}

	return &Collection[T]{
		dir:         dir,
		name:        name,
		path:        filepath.Join(dir, name+".json"),
		log:         log.WithField("collection", name),
		defaultJSON: raw,
	}, nil
}

// Init ensures the backing directory exists and seeds the file with the
// default value when absent. Safe to call on every process start.
func (c *Collection[T]) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("jsonstore %s: create dir: %w", c.name, err)
	}

	if _, err := os.Stat(c.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("jsonstore %s: stat: %w", c.name, err)
	}

	return c.writeLocked(c.defaultJSON)
}

// Read returns a deep copy of the current collection value.
func (c *Collection[T]) Read() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked()
}

// Write serializes v and atomically replaces the collection file.
func (c *Collection[T]) Write(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("jsonstore %s: marshal: %w", c.name, err)
	}
	return c.writeLocked(raw)
}

// Mutate runs fn inside the collection lock, serializing the whole
// read-modify-write cycle. Repositories use this for every write so two
// concurrent updates on the same collection cannot lose each other.
func (c *Collection[T]) Mutate(fn func(T) (T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.readLocked()
	if err != nil {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("jsonstore %s: marshal: %w", c.name, err)
	}
	return c.writeLocked(raw)
}

// DiskReads reports how many times the file has been read from disk.
// Exposed so cache behavior is observable in tests.
func (c *Collection[T]) DiskReads() int64 {
	return c.diskReads.Load()
}

// Path returns the backing file path.
func (c *Collection[T]) Path() string {
	return c.path
}

func (c *Collection[T]) readLocked() (T, error) {
	var zero T

	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			// Collection was never initialized or the file vanished.
			if err := c.writeLocked(c.defaultJSON); err != nil {
				return zero, err
			}
			return c.decode(c.defaultJSON)
		}
		return zero, fmt.Errorf("jsonstore %s: stat: %w", c.name, err)
	}

	if c.hasCache && info.ModTime().Equal(c.cacheMtime) {
		return c.decode(c.cache)
	}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		return zero, fmt.Errorf("jsonstore %s: read: %w", c.name, err)
	}
	c.diskReads.Add(1)

	value, canonical, recovered, ok := c.parseOrRecover(raw)
	if !ok {
		// Unrecoverable garbage: preserve the artifact and fall back to
		// the default value so the process stays usable.
		corrupt := c.path + ".corrupt." + strconv.FormatInt(time.Now().UnixMilli(), 10)
		if err := os.Rename(c.path, corrupt); err != nil {
			return zero, fmt.Errorf("jsonstore %s: quarantine corrupt file: %w", c.name, err)
		}
		c.log.WithField("artifact", corrupt).Warn("unrecoverable collection file, reinitializing")
		if err := c.writeLocked(c.defaultJSON); err != nil {
			return zero, err
		}
		return c.decode(c.defaultJSON)
	}

	if recovered {
		// Self-heal: rewrite the canonical file from the recovered value.
		c.log.Warn("recovered leading JSON value from corrupt collection file")
		if err := c.writeLocked(canonical); err != nil {
			return zero, err
		}
		return value, nil
	}

	c.cache = canonical
	c.cacheMtime = info.ModTime()
	c.hasCache = true
	return value, nil
}

// parseOrRecover decodes raw as a single JSON value. When raw is not
// valid JSON as a whole, it attempts to decode the first balanced
// top-level value starting at the first non-whitespace byte; trailing
// garbage from an interrupted append is discarded.
func (c *Collection[T]) parseOrRecover(raw []byte) (T, []byte, bool, bool) {
	var zero T

	trimmed := bytes.TrimSpace(raw)
	if v, err := c.decode(trimmed); err == nil {
		return v, trimmed, false, true
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	var lead json.RawMessage
	if err := dec.Decode(&lead); err != nil {
		return zero, nil, false, false
	}

	v, err := c.decode(lead)
	if err != nil {
		return zero, nil, false, false
	}
	return v, []byte(lead), true, true
}

// decode unmarshals raw onto a clone of the default value, so keys
// missing from the stored document keep their defaults. Every call
// produces a fresh deep copy.
func (c *Collection[T]) decode(raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(c.defaultJSON, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("jsonstore %s: decode default: %w", c.name, err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("jsonstore %s: decode: %w", c.name, err)
	}
	return v, nil
}

// writeLocked writes raw to a uniquely named temp file in the same
// directory, fsyncs it best-effort, then renames it over the target.
// The target is therefore always either the previous complete value or
// the new one, never a mix.
func (c *Collection[T]) writeLocked(raw []byte) error {
	tmp := fmt.Sprintf("%s.tmp.%d.%d", c.path, os.Getpid(), time.Now().UnixNano())

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("jsonstore %s: open temp: %w", c.name, err)
	}

	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("jsonstore %s: write temp: %w", c.name, err)
	}
	if err := f.Sync(); err != nil {
		// fsync failures are logged, not fatal: rename still gives us
		// whole-file atomicity on the filesystems we target.
		c.log.WithField("error", err.Error()).Warn("fsync failed on temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("jsonstore %s: close temp: %w", c.name, err)
	}

	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("jsonstore %s: rename: %w", c.name, err)
	}

	info, err := os.Stat(c.path)
	if err != nil {
		return fmt.Errorf("jsonstore %s: stat after write: %w", c.name, err)
	}

	c.cache = raw
	c.cacheMtime = info.ModTime()
	c.hasCache = true
	return nil
}
