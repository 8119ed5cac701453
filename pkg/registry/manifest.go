package registry

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ManifestEntry is the persisted bookkeeping record for one tool, mirroring
// spec.md §6.3's TOOLS_MANIFEST_PATH shape.
type ManifestEntry struct {
	Path        string   `json:"path"`
	Uses        int      `json:"uses"`
	Errors      int      `json:"errors"`
	Tags        []string `json:"tags"`
	CompositeOf []string `json:"composite_of"`
	Description string   `json:"description"`
	LastUsed    int64    `json:"last_used"`
}

// Manifest is the on-disk tool-usage ledger: a JSON map from tool name to
// ManifestEntry, rewritten after each recorded use. A zero-value path
// disables persistence (RecordUse then only mutates the in-memory copy).
type Manifest struct {
	mu      sync.Mutex
	path    string
	entries map[string]*ManifestEntry
}

// NewManifest loads (or lazily creates) the manifest at path. An empty path
// yields an in-memory-only manifest, used as the New() default so Registry
// never needs a nil check.
func NewManifest(path string) *Manifest {
	m := &Manifest{path: path, entries: make(map[string]*ManifestEntry)}
	if path == "" {
		return m
	}
	m.load()
	return m
}

func (m *Manifest) load() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("registry: failed to load tools manifest", "path", m.path, "error", err)
		}
		return
	}
	var entries map[string]*ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Error("registry: failed to parse tools manifest", "path", m.path, "error", err)
		return
	}
	m.entries = entries
}

func (m *Manifest) save() {
	if m.path == "" {
		return
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("registry: failed to create manifest dir", "dir", dir, "error", err)
			return
		}
	}
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		slog.Error("registry: failed to marshal tools manifest", "error", err)
		return
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		slog.Error("registry: failed to write tools manifest", "path", m.path, "error", err)
	}
}

// EnsureEntry seeds a manifest entry for name if one doesn't exist yet,
// without touching use/error counters.
func (m *Manifest) EnsureEntry(name string, spec *ToolSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[name]; ok {
		return
	}
	entry := &ManifestEntry{Tags: []string{}, CompositeOf: []string{}}
	if spec != nil {
		entry.Path = spec.Source
		entry.Tags = append([]string{}, spec.Tags...)
		entry.CompositeOf = append([]string{}, spec.CompositeOf...)
		entry.Description = spec.Description
	}
	m.entries[name] = entry
	m.save()
}

// RecordUse increments uses (and errors, on failure), stamps last_used,
// and rewrites the manifest to disk. Safe to call for a name with no prior
// entry — one is created on the fly.
func (m *Manifest) RecordUse(name string, errored bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[name]
	if !ok {
		entry = &ManifestEntry{Tags: []string{}, CompositeOf: []string{}}
		m.entries[name] = entry
	}
	entry.Uses++
	if errored {
		entry.Errors++
	}
	entry.LastUsed = time.Now().Unix()
	m.save()
}

// TopTools returns the k most-used entries, most uses first, ties broken by
// name.
func (m *Manifest) TopTools(k int) []struct {
	Name string
	ManifestEntry
} {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]struct {
		Name string
		ManifestEntry
	}, 0, len(m.entries))
	for name, entry := range m.entries {
		out = append(out, struct {
			Name string
			ManifestEntry
		}{Name: name, ManifestEntry: *entry})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Uses != out[j].Uses {
			return out[i].Uses > out[j].Uses
		}
		return out[i].Name < out[j].Name
	})
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}
