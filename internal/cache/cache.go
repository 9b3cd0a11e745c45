// Package cache implements the dependency cache: entries are directories
// stored under a key derived from a content hash of the dependency
// manifest plus an OS identifier. Lookup is exact-key first, then a
// prefix-based restore-key fallback picking the newest entry. A total miss
// is not an error; the install step simply runs uncached.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
)

// ComputeKey derives the cache key for a manifest file: the OS identifier,
// a label naming the cached tool, and the sha256 of the manifest content.
// Identical manifest bytes always yield the same key; any manifest change
// yields a different one.
func ComputeKey(osID, label, manifestPath string) (string, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return "", fmt.Errorf("open manifest %s: %w", manifestPath, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash manifest %s: %w", manifestPath, err)
	}
	return fmt.Sprintf("%s-%s-%s", osID, label, hex.EncodeToString(h.Sum(nil))), nil
}

// RestorePrefix returns the default restore-key prefix matching any
// manifest hash for the same OS and label.
func RestorePrefix(osID, label string) string {
	return fmt.Sprintf("%s-%s-", osID, label)
}

// OSID is the OS identifier used in cache keys.
func OSID() string { return goruntime.GOOS }

// Outcome describes a restore attempt.
type Outcome struct {
	Key      string // key actually restored from (may differ from the requested key on a prefix hit)
	Hit      bool
	Exact    bool
	Restored string // directory the entry was copied to
}

// Store is a filesystem cache store. Each entry is a directory named by
// its full key. There is no eviction; entries live until pruned manually.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) a cache store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Restore copies a cache entry into targetDir. Exact key first; on miss,
// the newest entry whose key starts with restorePrefix. A total miss
// returns a zero-hit outcome and no error.
func (s *Store) Restore(ctx context.Context, key, restorePrefix, targetDir string) (Outcome, error) {
	entry := filepath.Join(s.dir, key)
	if info, err := os.Stat(entry); err == nil && info.IsDir() {
		if err := copyTree(ctx, entry, targetDir); err != nil {
			return Outcome{}, fmt.Errorf("restore cache entry %s: %w", key, err)
		}
		slog.Info("Cache restored", logfields.CacheKey(key), slog.Bool("exact", true))
		return Outcome{Key: key, Hit: true, Exact: true, Restored: targetDir}, nil
	}

	if restorePrefix != "" {
		if fallback := s.newestWithPrefix(restorePrefix); fallback != "" {
			if err := copyTree(ctx, filepath.Join(s.dir, fallback), targetDir); err != nil {
				return Outcome{}, fmt.Errorf("restore cache entry %s: %w", fallback, err)
			}
			slog.Info("Cache restored from restore key", logfields.CacheKey(fallback), slog.Bool("exact", false))
			return Outcome{Key: fallback, Hit: true, Exact: false, Restored: targetDir}, nil
		}
	}

	slog.Info("Cache miss", logfields.CacheKey(key))
	return Outcome{Key: key}, nil
}

// Save stores sourceDir under key, replacing any previous entry with the
// same key. Saving is the cache-population side effect of a successful
// install step.
func (s *Store) Save(ctx context.Context, key, sourceDir string) error {
	entry := filepath.Join(s.dir, key)
	staging := entry + ".tmp"
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("clean staging for %s: %w", key, err)
	}
	if err := copyTree(ctx, sourceDir, staging); err != nil {
		return fmt.Errorf("stage cache entry %s: %w", key, err)
	}
	if err := os.RemoveAll(entry); err != nil {
		return fmt.Errorf("replace cache entry %s: %w", key, err)
	}
	if err := os.Rename(staging, entry); err != nil {
		return fmt.Errorf("commit cache entry %s: %w", key, err)
	}
	slog.Debug("Cache entry saved", logfields.CacheKey(key))
	return nil
}

// Keys lists stored entry keys, unordered.
func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasSuffix(e.Name(), ".tmp") {
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}

// newestWithPrefix returns the most recently modified entry key matching
// the prefix, or "".
func (s *Store) newestWithPrefix(prefix string) string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return ""
	}
	var newest string
	var newestMod int64 = -1
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); mod > newestMod {
			newestMod = mod
			newest = e.Name()
		}
	}
	return newest
}

// copyTree copies src into dst recursively, creating dst. Symlinks are
// skipped: cache entries hold plain dependency files.
func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
