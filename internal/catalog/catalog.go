// Package catalog loads the symbolic link catalog: a mapping from stable
// link names used in the tutorial templates to the URLs they resolve to.
// Names carry a convention: the "int" prefix marks links internal to the
// generated site, everything else is external.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/siteqa/internal/util/sets"
)

// internalPrefix marks catalog names that point inside the generated site.
const internalPrefix = "int"

// Catalog is the symbolic name to URL mapping consumed by verification.
type Catalog struct {
	Links map[string]string `yaml:"links"`
}

// Load reads a catalog YAML file. Environment variables in URL values are
// expanded, so entries like "${TUTORIAL_BASE_URL}/index.html" resolve against
// the deploy environment.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read link catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &c); err != nil {
		return nil, fmt.Errorf("parse link catalog %s: %w", path, err)
	}
	if len(c.Links) == 0 {
		return nil, fmt.Errorf("link catalog %s contains no links", path)
	}
	for name, url := range c.Links {
		if strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("link catalog %s: entry %q has an empty URL", path, name)
		}
	}
	return &c, nil
}

// IsInternal reports whether a catalog name follows the internal convention.
func IsInternal(name string) bool {
	return strings.HasPrefix(name, internalPrefix)
}

// URLs returns the catalog's URL value set in sorted order. When
// excludeInternal is set, entries with internal names are filtered out
// before the engine's own dedup runs.
func (c *Catalog) URLs(excludeInternal bool) []string {
	urls := sets.New[string]()
	for name, url := range c.Links {
		if excludeInternal && IsInternal(name) {
			continue
		}
		urls.Add(url)
	}
	return sets.Sorted(urls)
}

// InternalEntries returns the name to URL pairs that follow the internal
// naming convention, for checks that operate on the generated site itself.
func (c *Catalog) InternalEntries() map[string]string {
	entries := make(map[string]string)
	for name, url := range c.Links {
		if IsInternal(name) {
			entries[name] = url
		}
	}
	return entries
}
