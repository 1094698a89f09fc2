package npc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrCharacterNotFound is returned when a character id has no profile.
var ErrCharacterNotFound = errors.New("character not found")

// Catalog is an immutable lookup table of character profiles. Build it once
// at startup and pass it to whatever needs it.
type Catalog struct {
	profiles map[string]Profile
	ids      []string
}

// NewCatalog builds a catalog from the given profiles. Duplicate ids and
// profiles missing an id or name are rejected.
func NewCatalog(profiles ...Profile) (*Catalog, error) {
	c := &Catalog{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.profiles[p.ID]; dup {
			return nil, fmt.Errorf("duplicate profile id %q", p.ID)
		}
		c.profiles[p.ID] = p.clone()
		c.ids = append(c.ids, p.ID)
	}
	sort.Strings(c.ids)
	return c, nil
}

// DefaultCatalog holds the built-in profiles.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(Kaelen)
	if err != nil {
		// built-in data is static
		panic(err)
	}
	return c
}

// Get returns a copy of the profile for id.
func (c *Catalog) Get(id string) (Profile, error) {
	if c == nil {
		return Profile{}, fmt.Errorf("%w: %s", ErrCharacterNotFound, id)
	}
	p, ok := c.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrCharacterNotFound, id)
	}
	return p.clone(), nil
}

// IDs returns every character id in sorted order.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.ids...)
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.profiles)
}

// LoadCatalog reads every .yaml, .yml and .json file under dir. A file holds
// either a single profile or a list of profiles.
func LoadCatalog(dir string) (*Catalog, error) {
	var profiles []Profile

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml", ".json":
		default:
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read profile file %s: %w", path, err)
		}
		loaded, err := decodeProfiles(data)
		if err != nil {
			return fmt.Errorf("failed to parse profile file %s: %w", path, err)
		}
		profiles = append(profiles, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("failed to load catalog: no profiles found in %s", dir)
	}

	return NewCatalog(profiles...)
}

func decodeProfiles(data []byte) ([]Profile, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var list []Profile
		if err := root.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	case yaml.MappingNode:
		var p Profile
		if err := root.Decode(&p); err != nil {
			return nil, err
		}
		return []Profile{p}, nil
	default:
		return nil, fmt.Errorf("expected a profile or a list of profiles")
	}
}
