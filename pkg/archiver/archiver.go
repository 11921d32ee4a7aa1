package archiver

import (
	"bufio"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Archiver caches yt-dlp download-archive flat files (one
// "<extractor> <id>" pair per line) so membership checks don't re-read the
// file every time. Other processes may write the same files, so reads can
// optionally re-validate against the file's size/mtime.
type Archiver struct {
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	entries map[string]*fileCache

	skipReadStatChecks bool
}

type fileCache struct {
	ids    []string
	index  map[string]struct{}
	size   int64
	mtime  time.Time
	loaded bool
}

func New() *Archiver {
	return &Archiver{
		locks:   make(map[string]*sync.Mutex),
		entries: make(map[string]*fileCache),
	}
}

// SetSkipReadStatChecks disables the size/mtime comparison on the read
// path. Write paths always refresh the stat snapshot.
func (a *Archiver) SetSkipReadStatChecks(skip bool) {
	a.mu.Lock()
	a.skipReadStatChecks = skip
	a.mu.Unlock()
}

// Read returns the cached IDs for file, loading or reloading the file as
// needed. With ids set, only the requested IDs that are present come back.
func (a *Archiver) Read(file string, ids []string) []string {
	file, lock, cache := a.acquire(file)
	lock.Lock()
	defer lock.Unlock()

	a.ensureLoaded(file, cache, true)

	if ids == nil {
		out := make([]string, len(cache.ids))
		copy(out, cache.ids)
		return out
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !validID(id) {
			continue
		}
		if _, ok := cache.index[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (a *Archiver) Has(file string) bool {
	file, lock, cache := a.acquire(file)
	lock.Lock()
	defer lock.Unlock()
	a.ensureLoaded(file, cache, true)
	return len(cache.ids) > 0
}

// Add appends the previously-absent IDs to the archive file. With
// skipCheck the cache membership test is skipped, but duplicates within
// the batch itself are still collapsed. Returns false when there was
// nothing to write or the write failed.
func (a *Archiver) Add(file string, ids []string, skipCheck bool) bool {
	file, lock, cache := a.acquire(file)
	lock.Lock()
	defer lock.Unlock()

	// write paths always re-validate against the file, even when read
	// stat checks are off
	a.ensureLoaded(file, cache, false)

	seen := make(map[string]struct{}, len(ids))
	add := make([]string, 0, len(ids))
	for _, id := range ids {
		if !validID(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if !skipCheck {
			if _, ok := cache.index[id]; ok {
				continue
			}
		}
		add = append(add, id)
	}
	if len(add) == 0 {
		return false
	}

	if err := os.MkdirAll(filepath.Dir(file), os.ModePerm); err != nil {
		log.Printf("archive: mkdir for %s: %v", file, err)
		return false
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("archive: open %s: %v", file, err)
		return false
	}
	locked := flock(f) == nil
	var sb strings.Builder
	for _, id := range add {
		sb.WriteString(id)
		sb.WriteByte('\n')
	}
	_, err = f.WriteString(sb.String())
	if locked {
		funlock(f)
	}
	f.Close()
	if err != nil {
		log.Printf("archive: append %s: %v", file, err)
		return false
	}

	for _, id := range add {
		if _, ok := cache.index[id]; !ok {
			cache.index[id] = struct{}{}
			cache.ids = append(cache.ids, id)
		}
	}
	cache.loaded = true
	a.refreshStat(file, cache)
	return true
}

// Delete rewrites the archive file without the requested IDs. Malformed
// lines found along the way are dropped too. Returns true on success or
// when the file doesn't exist.
func (a *Archiver) Delete(file string, ids []string) bool {
	file, lock, cache := a.acquire(file)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(file); err != nil {
		return true
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	lines, err := readLines(file)
	if err != nil {
		log.Printf("archive: read %s: %v", file, err)
		return false
	}
	keep := make([]string, 0, len(lines))
	for _, line := range lines {
		if !validID(line) {
			continue
		}
		if _, ok := drop[line]; ok {
			continue
		}
		keep = append(keep, line)
	}

	tmp := file + ".tmp"
	var sb strings.Builder
	for _, line := range keep {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o644); err != nil {
		log.Printf("archive: write %s: %v", tmp, err)
		return false
	}
	if err := os.Rename(tmp, file); err != nil {
		log.Printf("archive: replace %s: %v", file, err)
		os.Remove(tmp)
		return false
	}

	cache.ids = keep
	cache.index = make(map[string]struct{}, len(keep))
	for _, id := range keep {
		cache.index[id] = struct{}{}
	}
	cache.loaded = true
	a.refreshStat(file, cache)
	return true
}

// acquire canonicalizes the path and returns its lock and cache entry.
// One lock per distinct resolved path, so different archive files never
// serialize each other and two names for the same file share one lock.
func (a *Archiver) acquire(file string) (string, *sync.Mutex, *fileCache) {
	if abs, err := filepath.Abs(file); err == nil {
		file = abs
	}
	file = filepath.Clean(file)
	if resolved, err := filepath.EvalSymlinks(file); err == nil {
		file = resolved
	} else if resolved, err := filepath.EvalSymlinks(filepath.Dir(file)); err == nil {
		// file may not exist yet; resolve the directory it will land in
		file = filepath.Join(resolved, filepath.Base(file))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[file]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[file] = lock
	}
	cache, ok := a.entries[file]
	if !ok {
		cache = &fileCache{index: make(map[string]struct{})}
		a.entries[file] = cache
	}
	return file, lock, cache
}

// ensureLoaded loads the file into the cache entry, or reloads it when
// the stat snapshot no longer matches. honorSkip lets the read path obey
// SetSkipReadStatChecks. Caller holds the per-file lock.
func (a *Archiver) ensureLoaded(file string, cache *fileCache, honorSkip bool) {
	if honorSkip {
		a.mu.Lock()
		skipStat := a.skipReadStatChecks
		a.mu.Unlock()
		if cache.loaded && skipStat {
			return
		}
	}
	if cache.loaded {
		st, err := os.Stat(file)
		if err == nil && st.Size() == cache.size && st.ModTime().Equal(cache.mtime) {
			return
		}
	}

	cache.ids = cache.ids[:0]
	cache.index = make(map[string]struct{})
	lines, err := readLines(file)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("archive: load %s: %v", file, err)
		}
		cache.loaded = true
		return
	}
	for _, line := range lines {
		if !validID(line) {
			continue
		}
		if _, ok := cache.index[line]; ok {
			continue
		}
		cache.index[line] = struct{}{}
		cache.ids = append(cache.ids, line)
	}
	cache.loaded = true
	a.refreshStat(file, cache)
}

func (a *Archiver) refreshStat(file string, cache *fileCache) {
	st, err := os.Stat(file)
	if err != nil {
		cache.size = 0
		cache.mtime = time.Time{}
		return
	}
	cache.size = st.Size()
	cache.mtime = st.ModTime()
}

func readLines(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	lines := make([]string, 0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// validID requires the "<extractor> <id>" two-token shape yt-dlp writes.
func validID(id string) bool {
	return len(strings.Fields(id)) >= 2
}
