// Package catalog holds the known companies and providers offered as
// suggestions while a visitor is typed in. The registry never checks
// membership; a visitor from an unknown company registers the same way.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Kind selects one of the catalog lists.
type Kind string

const (
	Companies Kind = "companies"
	Providers Kind = "providers"
)

// ParseKind accepts the list names used on the command line.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Companies, Providers:
		return k, nil
	case "company":
		return Companies, nil
	case "provider":
		return Providers, nil
	default:
		return "", fmt.Errorf("unknown catalog %q (want %q or %q)", s, Companies, Providers)
	}
}

// File is the on-disk YAML shape.
type File struct {
	Companies []string `yaml:"companies"`
	Providers []string `yaml:"providers"`
}

// Catalog is an immutable pair of sorted, de-duplicated lists.
type Catalog struct {
	lists map[Kind][]string
}

// New builds a catalog from raw lists. Entries are trimmed, blanks dropped,
// and case-insensitive duplicates collapsed to their first spelling.
func New(f File) *Catalog {
	return &Catalog{lists: map[Kind][]string{
		Companies: clean(f.Companies),
		Providers: clean(f.Providers),
	}}
}

// Load reads a catalog from path. A missing file yields an empty catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(File{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML catalog data. Unknown keys are rejected.
func Parse(data []byte) (*Catalog, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(f), nil
}

// List returns a copy of the named list.
func (c *Catalog) List(k Kind) []string {
	return append([]string(nil), c.lists[k]...)
}

// Suggest returns the entries of k that start with prefix, ignoring case.
// An empty prefix returns the whole list.
func (c *Catalog) Suggest(k Kind, prefix string) []string {
	p := fold(strings.TrimSpace(prefix))
	var out []string
	for _, v := range c.lists[k] {
		if strings.HasPrefix(fold(v), p) {
			out = append(out, v)
		}
	}
	return out
}

// Contains reports whether v is in k, ignoring case and surrounding space.
func (c *Catalog) Contains(k Kind, v string) bool {
	want := fold(strings.TrimSpace(v))
	for _, e := range c.lists[k] {
		if fold(e) == want {
			return true
		}
	}
	return false
}

func fold(s string) string {
	return cases.Fold().String(s)
}

func clean(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := fold(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return fold(out[i]) < fold(out[j]) })
	return out
}
