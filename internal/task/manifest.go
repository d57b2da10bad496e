package task

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/vk/gridpipe/internal/fsutil"
)

// ManifestFile is the name of the persisted logical-to-hashed name mapping.
const ManifestFile = "rev-manifest.json"

// Manifest maps logical bundle names to their cache-busted names. It is
// shared by the tasks of one run and persisted after every change.
type Manifest struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
}

// NewManifest creates a manifest persisted at path. An empty path keeps it in
// memory only.
func NewManifest(path string) *Manifest {
	return &Manifest{path: path, entries: make(map[string]string)}
}

// Set records a mapping and rewrites the manifest file.
func (m *Manifest) Set(logical, hashed string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[logical] = hashed
	if m.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFile(m.path, append(b, '\n')); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Lookup returns the hashed name recorded for a logical name.
func (m *Manifest) Lookup(logical string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.entries[logical]
	return h, ok
}

// Logical returns the recorded logical names, sorted.
func (m *Manifest) Logical() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.entries))
	for k := range m.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// HashedName inserts the first eight hex digits of the content's xxhash after
// the first segment of name: bundle.min.css becomes bundle.1a2b3c4d.min.css.
func HashedName(name string, content []byte) string {
	sum := fmt.Sprintf("%016x", xxhash.Sum64(content))[:8]
	stem, rest, found := strings.Cut(name, ".")
	if !found {
		return name + "." + sum
	}
	return stem + "." + sum + "." + rest
}
