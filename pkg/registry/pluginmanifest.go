package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// PluginManifest is the plugin.json schema spec.md §4.1 describes for
// discovery source 4: {name, version, entry, scopes?, commands?}.
type PluginManifest struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Entry    string   `json:"entry"`
	Scopes   []string `json:"scopes,omitempty"`
	Commands []string `json:"commands,omitempty"`

	// Dir is the directory the manifest was loaded from; Entry is resolved
	// relative to it if not absolute.
	Dir string `json:"-"`
}

const pluginManifestFileName = "plugin.json"

func loadPluginManifest(path string) (*PluginManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m PluginManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m.Dir = filepath.Dir(path)
	if !filepath.IsAbs(m.Entry) {
		m.Entry = filepath.Join(m.Dir, m.Entry)
	}
	return &m, nil
}

// findPluginManifests walks one directory level under root, returning every
// subdirectory's plugin.json path keyed by the subdirectory's name.
func findPluginManifests(root string) (map[string]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name(), pluginManifestFileName)
		if _, err := os.Stat(path); err == nil {
			out[entry.Name()] = path
		}
	}
	return out, nil
}
