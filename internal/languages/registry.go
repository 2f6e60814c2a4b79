package languages

import (
	"errors"
	"sort"
)

var (
	ErrLanguageNotFound = errors.New("language not found")
)

// builtin is the closed set of supported languages. Adding a language means
// adding a case here together with its sandbox requirements.
var builtin = map[ID]Language{
	C: {
		ID:        C,
		Extension: "c",
		Compile: func(src, bin string) []string {
			return []string{"gcc", "-o", bin, src}
		},
		Image: "gcc:13",
	},
	Cpp: {
		ID:        Cpp,
		Extension: "cpp",
		Compile: func(src, bin string) []string {
			return []string{"g++", "-o", bin, src}
		},
		Image: "gcc:13",
	},
	Go: {
		ID:        Go,
		Extension: "go",
		Compile: func(src, bin string) []string {
			return []string{"go", "build", "-o", bin, src}
		},
		Image: "golang:1.24",
	},
	Rust: {
		ID:        Rust,
		Extension: "rs",
		Compile: func(src, bin string) []string {
			return []string{"rustc", "-o", bin, src}
		},
		Image: "rust:1.85",
	},
	Python2: {
		ID:          Python2,
		Extension:   "py",
		Interpreter: "python2",
		Image:       "python:2.7-slim",
	},
	Python3: {
		ID:          Python3,
		Extension:   "py",
		Interpreter: "python3",
		Image:       "python:3.12-slim",
	},
}

// Parse resolves a wire tag. Tags are case-sensitive.
func Parse(tag string) (Language, error) {
	lang, ok := builtin[ID(tag)]
	if !ok {
		return Language{}, ErrLanguageNotFound
	}
	return lang, nil
}

// Registry is a read-only view over the supported languages.
type Registry struct {
	languages map[ID]Language
}

func NewRegistry() *Registry {
	return &Registry{languages: builtin}
}

func (r *Registry) Get(id string) (Language, error) {
	lang, ok := r.languages[ID(id)]
	if !ok {
		return Language{}, ErrLanguageNotFound
	}
	return lang, nil
}

// List returns the languages ordered by tag.
func (r *Registry) List() []Language {
	langs := make([]Language, 0, len(r.languages))
	for _, l := range r.languages {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i].ID < langs[j].ID })
	return langs
}
