package languages

// ID is the wire tag of a supported language.
type ID string

const (
	C       ID = "C"
	Cpp     ID = "C++"
	Go      ID = "Go"
	Rust    ID = "Rust"
	Python2 ID = "Python2"
	Python3 ID = "Python3"
)

// Language describes how source in one language is compiled and run.
// Compile is nil for interpreted languages.
type Language struct {
	ID          ID
	Extension   string
	Compile     func(src, bin string) []string
	Interpreter string
	// Image is only used by the docker backend.
	Image string
}

// Compiled reports whether the language needs a compile step before running.
func (l Language) Compiled() bool {
	return l.Compile != nil
}

// CompileCommand returns the toolchain invocation producing bin from src.
func (l Language) CompileCommand(src, bin string) []string {
	if l.Compile == nil {
		return nil
	}
	return l.Compile(src, bin)
}

// RunCommand returns the program and arguments that execute the submission.
// Compiled languages run the binary directly, interpreted ones hand the
// source path to the interpreter.
func (l Language) RunCommand(src, bin string) (string, []string) {
	if l.Compiled() {
		return bin, nil
	}
	return l.Interpreter, []string{src}
}

// Toolchain returns the binary the language needs on PATH, either the
// compiler or the interpreter.
func (l Language) Toolchain() string {
	if l.Compiled() {
		return l.Compile("", "")[0]
	}
	return l.Interpreter
}
