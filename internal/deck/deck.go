// Package deck loads authored flashcard decks from markdown, YAML and xlsx
// files into units placed in the curriculum hierarchy.
package deck

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lavariyalabs/snapy/internal/domain"
)

// Unit is one study unit as authored, with the hierarchy it belongs to.
// Card UnitIDs are left zero until the unit is stored.
type Unit struct {
	Grade       string
	Subject     string
	SubjectCode string
	TermNumber  int
	TermName    string
	Name        string
	Description string
	OrderIndex  int
	Cards       []domain.Flashcard
}

// Key identifies the unit within the hierarchy.
func (u *Unit) Key() string {
	return fmt.Sprintf("%s/%s/%d/%s", u.Grade, u.Subject, u.TermNumber, u.Name)
}

func (u *Unit) validate() error {
	switch {
	case u.Grade == "":
		return fmt.Errorf("unit %q: missing grade", u.Name)
	case u.Subject == "":
		return fmt.Errorf("unit %q: missing subject", u.Name)
	case u.TermNumber <= 0:
		return fmt.Errorf("unit %q: term number must be positive", u.Name)
	case u.Name == "":
		return fmt.Errorf("unit in %s/%s term %d: missing name", u.Grade, u.Subject, u.TermNumber)
	}
	return nil
}

// IsDeckFile reports whether name has an extension Load understands.
func IsDeckFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".yaml", ".yml", ".xlsx":
		return true
	}
	return false
}

// Load reads the deck file at path. root is the directory the path
// convention of markdown decks is resolved against.
func Load(root, path string) ([]Unit, error) {
	var (
		units []Unit
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		var u Unit
		u, err = LoadMarkdown(root, path)
		units = []Unit{u}
	case ".yaml", ".yml":
		units, err = LoadYAMLFile(path)
	case ".xlsx":
		units, err = LoadWorkbook(path)
	default:
		return nil, fmt.Errorf("unsupported deck file %s", path)
	}
	if err != nil {
		return nil, err
	}
	for i := range units {
		if err := units[i].validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return units, nil
}
