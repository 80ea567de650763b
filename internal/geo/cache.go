package geo

import (
	"encoding/json"
	"fmt"
	"os"
)

// Cache maps raw city labels to their resolved canonical names. One instance
// is loaded per run, injected into the resolver, and saved by the
// orchestrator afterwards. Entries are never overwritten once set, so a
// manual correction in the file survives future lookups.
type Cache struct {
	path    string
	entries map[string]string
}

// LoadCache reads the cache file at path. A missing file yields an empty
// cache; any other read error is returned.
func LoadCache(path string) (*Cache, error) {
	c := &Cache{path: path, entries: make(map[string]string)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read city cache: %w", err)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("parse city cache: %w", err)
	}
	return c, nil
}

// Get returns the cached canonical name for a raw label.
func (c *Cache) Get(city string) (string, bool) {
	v, ok := c.entries[city]
	return v, ok
}

// Put records a resolution. An existing entry is kept as-is.
func (c *Cache) Put(raw, resolved string) {
	if _, ok := c.entries[raw]; ok {
		return
	}
	c.entries[raw] = resolved
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }

// Save writes the cache back to its file.
func (c *Cache) Save() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal city cache: %w", err)
	}
	return os.WriteFile(c.path, data, 0o644)
}
