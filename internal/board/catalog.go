// Package board resolves university design boards: the reference images the
// generator uses for gown, hood and cap styling. Boards are read-only and
// shared across jobs.
package board

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"server/internal/domain"
)

const boardFilename = "board.png"

// University describes one entry in the catalog.
type University struct {
	Name         string   `json:"name"`
	DegreeLevels []string `json:"degree_levels"`
}

// Catalog maps (university, degree level) onto board images under a
// templates root laid out as <root>/<University>/<Degree>/board.png.
type Catalog struct {
	root  string
	title cases.Caser
}

// NewCatalog validates the templates root and returns a catalog.
func NewCatalog(root string) (*Catalog, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("board: templates root is required")
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Catalog{root: root, title: cases.Title(language.English)}, nil
}

// Path returns the board image path for the given university and degree
// level, or domain.ErrBoardNotFound. Lookups tolerate casing differences in
// user input ("oxford" finds "Oxford").
func (c *Catalog) Path(university, degreeLevel string) (string, error) {
	university = strings.TrimSpace(university)
	degreeLevel = strings.TrimSpace(degreeLevel)
	if university == "" || degreeLevel == "" {
		return "", domain.ErrBoardNotFound
	}

	candidates := []struct{ uni, level string }{
		{university, degreeLevel},
		{c.title.String(university), c.title.String(degreeLevel)},
	}
	for _, cand := range candidates {
		p := filepath.Join(c.root, cand.uni, cand.level, boardFilename)
		if insideRoot(c.root, p) && fileExists(p) {
			return p, nil
		}
	}
	return "", domain.ErrBoardNotFound
}

// Read loads the board bytes for the given university and degree level.
func (c *Catalog) Read(university, degreeLevel string) ([]byte, string, error) {
	p, err := c.Path(university, degreeLevel)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, "", fmt.Errorf("board: read %s: %w", p, err)
	}
	return data, p, nil
}

// ReadPath loads board bytes from an already-resolved path, used when a frozen
// image row carries its board reference.
func ReadPath(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrBoardNotFound
		}
		return nil, fmt.Errorf("board: read %s: %w", p, err)
	}
	return data, nil
}

// List enumerates universities that have at least one degree level with a
// board on file, sorted by name.
func (c *Catalog) List() ([]University, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("board: read templates root: %w", err)
	}

	var out []University
	for _, uniDir := range entries {
		if !uniDir.IsDir() {
			continue
		}
		levels, err := c.degreeLevels(uniDir.Name())
		if err != nil {
			return nil, err
		}
		if len(levels) > 0 {
			out = append(out, University{Name: uniDir.Name(), DegreeLevels: levels})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Catalog) degreeLevels(university string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.root, university))
	if err != nil {
		return nil, fmt.Errorf("board: read university dir: %w", err)
	}
	var levels []string
	for _, levelDir := range entries {
		if !levelDir.IsDir() {
			continue
		}
		if fileExists(filepath.Join(c.root, university, levelDir.Name(), boardFilename)) {
			levels = append(levels, levelDir.Name())
		}
	}
	sort.Strings(levels)
	return levels, nil
}

func insideRoot(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
