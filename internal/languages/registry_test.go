package languages

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		tag       string
		ext       string
		compiled  bool
		toolchain string
	}{
		{"C", "c", true, "gcc"},
		{"C++", "cpp", true, "g++"},
		{"Go", "go", true, "go"},
		{"Rust", "rs", true, "rustc"},
		{"Python2", "py", false, "python2"},
		{"Python3", "py", false, "python3"},
	}

	for _, tc := range tests {
		t.Run(tc.tag, func(t *testing.T) {
			lang, err := Parse(tc.tag)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.tag, err)
			}
			if string(lang.ID) != tc.tag {
				t.Errorf("ID = %q, want %q", lang.ID, tc.tag)
			}
			if lang.Extension != tc.ext {
				t.Errorf("Extension = %q, want %q", lang.Extension, tc.ext)
			}
			if lang.Compiled() != tc.compiled {
				t.Errorf("Compiled() = %v, want %v", lang.Compiled(), tc.compiled)
			}
			if got := lang.Toolchain(); got != tc.toolchain {
				t.Errorf("Toolchain() = %q, want %q", got, tc.toolchain)
			}
		})
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, tag := range []string{"Java", "", "python3", "c", "Python"} {
		if _, err := Parse(tag); !errors.Is(err, ErrLanguageNotFound) {
			t.Errorf("Parse(%q) err = %v, want ErrLanguageNotFound", tag, err)
		}
	}
}

func TestCommands(t *testing.T) {
	c, _ := Parse("C")
	if got, want := c.CompileCommand("/s/a.c", "/s/a"), []string{"gcc", "-o", "/s/a", "/s/a.c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("CompileCommand = %v, want %v", got, want)
	}
	exe, args := c.RunCommand("/s/a.c", "/s/a")
	if exe != "/s/a" || len(args) != 0 {
		t.Errorf("RunCommand = %q %v, want /s/a with no args", exe, args)
	}

	py, _ := Parse("Python3")
	if got := py.CompileCommand("/s/a.py", "/s/a"); got != nil {
		t.Errorf("CompileCommand for interpreted = %v, want nil", got)
	}
	exe, args = py.RunCommand("/s/a.py", "/s/a")
	if exe != "python3" || !reflect.DeepEqual(args, []string{"/s/a.py"}) {
		t.Errorf("RunCommand = %q %v, want python3 [/s/a.py]", exe, args)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	langs := r.List()
	if len(langs) != 6 {
		t.Fatalf("List() = %d languages, want 6", len(langs))
	}
	for i := 1; i < len(langs); i++ {
		if langs[i-1].ID >= langs[i].ID {
			t.Errorf("List() not sorted at %d: %q >= %q", i, langs[i-1].ID, langs[i].ID)
		}
	}
	if _, err := r.Get("Rust"); err != nil {
		t.Errorf("Get(Rust): %v", err)
	}
	if _, err := r.Get("Java"); !errors.Is(err, ErrLanguageNotFound) {
		t.Errorf("Get(Java) err = %v, want ErrLanguageNotFound", err)
	}
}
