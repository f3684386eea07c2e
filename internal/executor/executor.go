// Package executor runs untrusted-ish student code with a bounded timeout
// and reports stdout/stderr/exit status. It is deliberately a black box to
// the coordination core: the core records results, and no execution ever
// happens while room state is locked. Sandboxing is out of scope here and
// belongs to the deployment (containers, seccomp, what have you).
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of one execution.
type Result struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// TestCase feeds one input through the code and checks the output.
type TestCase struct {
	Input          string `json:"input,omitempty"`
	ExpectedOutput string `json:"expectedOutput"`
}

// TestResult is one TestCase's outcome. Passed compares trimmed stdout with
// the trimmed expectation.
type TestResult struct {
	TestCase
	Actual string `json:"actual"`
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

type languageConfig struct {
	extension string
	command   func(path string) *exec.Cmd
}

// Executor writes code to a temp file and runs the language's toolchain with
// a per-run timeout. SQL is the exception: it runs in-process against an
// in-memory SQLite database (see sql.go).
type Executor struct {
	tempDir string
	timeout time.Duration
	langs   map[string]languageConfig
}

// New prepares the temp directory and the language table.
func New(tempDir string, timeout time.Duration) (*Executor, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &Executor{
		tempDir: tempDir,
		timeout: timeout,
		langs: map[string]languageConfig{
			"python": {
				extension: ".py",
				command:   func(path string) *exec.Cmd { return exec.Command("python3", path) },
			},
			"go": {
				extension: ".go",
				command:   func(path string) *exec.Cmd { return exec.Command("go", "run", path) },
			},
			"javascript": {
				extension: ".js",
				command:   func(path string) *exec.Cmd { return exec.Command("node", path) },
			},
		},
	}, nil
}

// SupportsLanguage reports whether the executor can run the language.
func (e *Executor) SupportsLanguage(language string) bool {
	if language == "sql" {
		return true
	}
	_, ok := e.langs[language]
	return ok
}

// Execute runs code in the given language with stdin attached and a bounded
// timeout. A non-zero exit returns the captured output together with
// ErrExecutionFailed; hitting the timeout returns ErrTimeout.
func (e *Executor) Execute(ctx context.Context, code, language, stdin string) (*Result, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}

	if language == "sql" {
		return e.runSQL(ctx, code)
	}

	cfg, ok := e.langs[language]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	path := filepath.Join(e.tempDir, uuid.New().String()+cfg.extension)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write source file: %w", err)
	}
	defer os.Remove(path)

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	base := cfg.command(path)
	cmd := exec.CommandContext(runCtx, base.Path, base.Args[1:]...)
	cmd.Dir = e.tempDir
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
	}

	result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("%w: %s", ErrExecutionFailed, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	return result, nil
}

// RunTests executes the code once per test case and compares trimmed stdout
// with the expected output. An execution error fails that case only.
func (e *Executor) RunTests(ctx context.Context, code, language string, cases []TestCase) []TestResult {
	results := make([]TestResult, 0, len(cases))

	for _, tc := range cases {
		res, err := e.Execute(ctx, code, language, tc.Input)
		if err != nil {
			tr := TestResult{TestCase: tc, Error: err.Error()}
			if res != nil {
				tr.Actual = res.Stdout
			}
			results = append(results, tr)
			continue
		}

		results = append(results, TestResult{
			TestCase: tc,
			Actual:   res.Stdout,
			Passed:   strings.TrimSpace(res.Stdout) == strings.TrimSpace(tc.ExpectedOutput),
			Error:    res.Stderr,
		})
	}

	return results
}
