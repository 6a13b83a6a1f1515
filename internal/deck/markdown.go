package deck

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/lavariyalabs/snapy/internal/parser"
)

// LoadMarkdown parses a markdown deck laid out as
// <grade>/<subject>/<NN-term>/<NN-unit>.md under root. The leading digits
// of the term directory and unit file give the term number and unit order.
func LoadMarkdown(root, path string) (Unit, error) {
	u, err := UnitFromPath(root, path)
	if err != nil {
		return Unit{}, err
	}
	cards, err := parser.ParseFile(path)
	if err != nil {
		return Unit{}, err
	}
	u.Cards = cards
	return u, nil
}

// UnitFromPath derives the hierarchy of a markdown deck from its location.
func UnitFromPath(root, path string) (Unit, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return Unit{}, fmt.Errorf("failed to resolve %s against %s: %w", path, root, err)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 4 {
		return Unit{}, fmt.Errorf("%s: expected <grade>/<subject>/<term>/<unit>.md", rel)
	}
	parts = parts[len(parts)-4:]

	termNumber, termName := splitOrdinal(parts[2])
	if termNumber <= 0 {
		return Unit{}, fmt.Errorf("%s: term directory %q must start with its number", rel, parts[2])
	}
	order, unitName := splitOrdinal(strings.TrimSuffix(parts[3], filepath.Ext(parts[3])))

	return Unit{
		Grade:      humanize(parts[0]),
		Subject:    humanize(parts[1]),
		TermNumber: termNumber,
		TermName:   termName,
		Name:       unitName,
		OrderIndex: order,
	}, nil
}

// splitOrdinal splits "02-cell-biology" into 2 and "Cell Biology".
// Names without leading digits get ordinal 0.
func splitOrdinal(s string) (int, string) {
	i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if i == -1 {
		i = len(s)
	}
	n, _ := strconv.Atoi(s[:i])
	name := humanize(strings.TrimLeft(s[i:], "-_ ."))
	if name == "" {
		name = s
	}
	return n, name
}

// humanize turns "grade-10" or "social_studies" into "Grade 10" and "Social Studies".
func humanize(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
