package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/itstheanurag/coderunner/internal/executor"
	"github.com/itstheanurag/coderunner/internal/languages"
	"github.com/itstheanurag/coderunner/internal/server"
	"github.com/spf13/cobra"
)

var (
	runLanguage  string
	runFile      string
	runInputFile string
	runTimeLimit int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single submission and print the outcome as JSON",
	Long: `Compile and run one source file through the same pipeline the server uses.
Use "-" as --file or --input to read from standard input.

Examples:
  coderunner run --language Python3 --file hello.py
  coderunner run --language C --file sum.c --input numbers.txt --time-limit 2`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&runLanguage, "language", "l", "", "Language tag (C, C++, Go, Rust, Python2, Python3)")
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Source file")
	runCmd.Flags().StringVarP(&runInputFile, "input", "i", "", "File fed to the program's stdin")
	runCmd.Flags().IntVarP(&runTimeLimit, "time-limit", "t", 5, "CPU time limit in seconds (1-10)")
	_ = runCmd.MarkFlagRequired("language")
	_ = runCmd.MarkFlagRequired("file")
}

func readArg(cmd *cobra.Command, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func runOnce(cmd *cobra.Command, args []string) error {
	lang, err := languages.Parse(runLanguage)
	if err != nil {
		return fmt.Errorf("%w: %q", err, runLanguage)
	}
	if err := executor.ValidateTimeLimit(runTimeLimit); err != nil {
		return err
	}
	if runFile == "-" && runInputFile == "-" {
		return fmt.Errorf("--file and --input cannot both read stdin")
	}

	source, err := readArg(cmd, runFile)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	input, err := readArg(cmd, runInputFile)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	conf, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := newLogger(conf.Log)
	if err != nil {
		return err
	}

	p, err := server.NewPipeline(conf, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	outcome, err := p.Executor.Execute(cmd.Context(), executor.ExecuteOptions{
		Language:   lang,
		SourceCode: source,
		Input:      input,
		TimeLimit:  runTimeLimit,
	})
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(outcome)
}
