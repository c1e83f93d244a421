package deck

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/hetman/internal/game/rng"
)

//go:embed default.yaml
var defaultPack []byte

// Pack is one YAML content file.
type Pack struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Prompts []string `yaml:"prompts"`
	Answers []string `yaml:"answers"`
}

// Library is the merged, immutable content of every loaded pack.
type Library struct {
	packs   []string
	prompts []string
	answers []string
}

// NewLibrary merges packs into a Library. Blank cards are dropped and duplicate
// texts are kept once.
//
// Postcondition: Returns an error if any pack has an empty or repeated ID, or if
// the merged library has no prompts or no answers.
func NewLibrary(packs ...Pack) (*Library, error) {
	lib := &Library{}
	seenPack := make(map[string]bool)
	seenPrompt := make(map[string]bool)
	seenAnswer := make(map[string]bool)
	for _, p := range packs {
		if p.ID == "" {
			return nil, fmt.Errorf("pack %q: id must not be empty", p.Name)
		}
		if seenPack[p.ID] {
			return nil, fmt.Errorf("pack %q: duplicate id", p.ID)
		}
		seenPack[p.ID] = true
		lib.packs = append(lib.packs, p.ID)
		lib.prompts = appendUnique(lib.prompts, seenPrompt, p.Prompts)
		lib.answers = appendUnique(lib.answers, seenAnswer, p.Answers)
	}
	if len(lib.prompts) == 0 {
		return nil, fmt.Errorf("deck library has no prompt cards")
	}
	if len(lib.answers) == 0 {
		return nil, fmt.Errorf("deck library has no answer cards")
	}
	return lib, nil
}

func appendUnique(dst []string, seen map[string]bool, cards []string) []string {
	for _, c := range cards {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		dst = append(dst, c)
	}
	return dst
}

// Default returns the built-in library.
func Default() (*Library, error) {
	p, err := parsePack(defaultPack)
	if err != nil {
		return nil, fmt.Errorf("parsing built-in deck: %w", err)
	}
	return NewLibrary(p)
}

// LoadDirectory reads every .yaml file in dir as a Pack, in file name order.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a Library or a non-nil error naming the offending file.
func LoadDirectory(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading deck dir %q: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	packs := make([]Pack, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		p, err := parsePack(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		packs = append(packs, p)
	}
	return NewLibrary(packs...)
}

func parsePack(data []byte) (Pack, error) {
	var p Pack
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Pack{}, err
	}
	return p, nil
}

// Packs returns the IDs of the merged packs in load order.
func (l *Library) Packs() []string {
	return append([]string(nil), l.packs...)
}

// PromptCount returns the number of distinct prompt cards.
func (l *Library) PromptCount() int { return len(l.prompts) }

// AnswerCount returns the number of distinct answer cards.
func (l *Library) AnswerCount() int { return len(l.answers) }

// PromptDeck returns a freshly shuffled pile of every prompt card.
func (l *Library) PromptDeck(src rng.Source) *Deck {
	return Shuffled(src, l.prompts)
}

// AnswerDeck returns a freshly shuffled pile of every answer card.
func (l *Library) AnswerDeck(src rng.Source) *Deck {
	return Shuffled(src, l.answers)
}
