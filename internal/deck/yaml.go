package deck

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lavariyalabs/snapy/internal/domain"
)

type yamlDeck struct {
	Grade       string     `yaml:"grade"`
	Subject     string     `yaml:"subject"`
	SubjectCode string     `yaml:"subject_code"`
	Term        yamlTerm   `yaml:"term"`
	Units       []yamlUnit `yaml:"units"`
}

type yamlTerm struct {
	Number int    `yaml:"number"`
	Name   string `yaml:"name"`
}

type yamlUnit struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Order       int        `yaml:"order"`
	Cards       []yamlCard `yaml:"cards"`
}

type yamlCard struct {
	Type        string       `yaml:"type"`
	Question    string       `yaml:"question"`
	Answer      string       `yaml:"answer"`
	Explanation string       `yaml:"explanation"`
	Difficulty  string       `yaml:"difficulty"`
	Options     []yamlOption `yaml:"options"`
}

type yamlOption struct {
	Letter  string `yaml:"letter"`
	Text    string `yaml:"text"`
	Correct bool   `yaml:"correct"`
}

// LoadYAMLFile reads a YAML deck from path.
func LoadYAMLFile(path string) ([]Unit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	units, err := LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return units, nil
}

// LoadYAML decodes a YAML deck: one grade, subject and term holding a list
// of units with their cards. A card's type defaults to MCQ when it lists
// options and SELF_EVAL otherwise.
func LoadYAML(r io.Reader) ([]Unit, error) {
	var d yamlDeck
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode yaml deck: %w", err)
	}

	units := make([]Unit, 0, len(d.Units))
	for _, yu := range d.Units {
		u := Unit{
			Grade:       d.Grade,
			Subject:     d.Subject,
			SubjectCode: d.SubjectCode,
			TermNumber:  d.Term.Number,
			TermName:    d.Term.Name,
			Name:        yu.Name,
			Description: yu.Description,
			OrderIndex:  yu.Order,
		}
		for i, yc := range yu.Cards {
			c, err := yc.flashcard(i)
			if err != nil {
				return nil, fmt.Errorf("unit %q card %d: %w", yu.Name, i+1, err)
			}
			u.Cards = append(u.Cards, c)
		}
		units = append(units, u)
	}
	return units, nil
}

func (yc yamlCard) flashcard(order int) (domain.Flashcard, error) {
	typ := yc.Type
	if typ == "" && len(yc.Options) > 0 {
		typ = string(domain.MCQ)
	}
	cardType, err := domain.ParseCardType(typ)
	if err != nil {
		return domain.Flashcard{}, err
	}
	difficulty, err := domain.ParseDifficulty(yc.Difficulty)
	if err != nil {
		return domain.Flashcard{}, err
	}

	c := domain.Flashcard{
		Type:        cardType,
		Question:    yc.Question,
		Answer:      yc.Answer,
		Explanation: yc.Explanation,
		Difficulty:  difficulty,
		OrderIndex:  order,
	}
	for i, yo := range yc.Options {
		c.Options = append(c.Options, domain.QuizOption{
			Text:       yo.Text,
			Letter:     optionLetter(yo.Letter, i),
			IsCorrect:  yo.Correct,
			OrderIndex: i,
		})
	}
	return c, nil
}

// optionLetter defaults an unlettered option to its position: A, B, C, D.
func optionLetter(letter string, i int) string {
	if letter = strings.ToUpper(strings.TrimSpace(letter)); letter != "" {
		return letter
	}
	return string(rune('A' + i))
}
