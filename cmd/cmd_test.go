package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and
// returns everything fn printed.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func TestRunHelp(t *testing.T) {
	output := captureStdout(t, runHelp)

	expected := []string{
		"GroundSQL",
		"groundsql migrate",
		"groundsql golden",
		"groundsql instructions",
		"groundsql files",
		"groundsql ask",
		"groundsql finetune",
		"groundsql reconcile",
		"GEMINI_API_KEY",
		"DEBUG",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("expected help output to contain %q\nGot: %s", want, output)
		}
	}
}

func TestRunVersion(t *testing.T) {
	// Pin the environment so config loading is deterministic.
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")

	output := captureStdout(t, runVersion)

	expected := []string{
		"GroundSQL development",
		"Build Time: unknown",
		"Git Commit: unknown",
		"Configuration",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("expected version output to contain %q\nGot: %s", want, output)
		}
	}
}

func TestDescribeKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "empty", key: "", want: "Not set"},
		{name: "short value reports presence only", key: "abc", want: "(configured)"},
		{name: "long value shows edges", key: "sk-1234567890abcdef", want: "sk-1...cdef (configured)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeKey(tt.key); got != tt.want {
				t.Errorf("describeKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"groundsql", "bogus"}

	err := Execute()
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command: bogus") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExecute_NoArgsShowsHelp(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"groundsql"}

	var err error
	output := captureStdout(t, func() { err = Execute() })
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if !strings.Contains(output, "Usage:") {
		t.Errorf("expected usage output, got: %s", output)
	}
}

// Subcommand dispatchers validate their input before any collaborator
// is built, so bad invocations fail fast without touching the database.
func TestSubcommandUsageErrors(t *testing.T) {
	tests := []struct {
		name    string
		run     func() error
		wantErr string
	}{
		{
			name:    "golden without subcommand",
			run:     func() error { return runGolden(nil) },
			wantErr: "usage: groundsql golden",
		},
		{
			name:    "golden unknown subcommand",
			run:     func() error { return runGolden([]string{"bogus"}) },
			wantErr: "unknown golden subcommand",
		},
		{
			name:    "golden list without connection",
			run:     func() error { return runGoldenList(nil) },
			wantErr: "-connection is required",
		},
		{
			name:    "golden remove without ids",
			run:     func() error { return runGoldenRemove(nil) },
			wantErr: "usage: groundsql golden remove",
		},
		{
			name:    "instructions without subcommand",
			run:     func() error { return runInstructions(nil) },
			wantErr: "usage: groundsql instructions",
		},
		{
			name:    "instructions add without flags",
			run:     func() error { return runInstructionsAdd(nil) },
			wantErr: "-connection and -text are required",
		},
		{
			name:    "instructions update without id",
			run:     func() error { return runInstructionsUpdate([]string{"-text", "x"}) },
			wantErr: "usage: groundsql instructions update",
		},
		{
			name:    "files without subcommand",
			run:     func() error { return runFiles(nil) },
			wantErr: "usage: groundsql files",
		},
		{
			name:    "files add without connection",
			run:     func() error { return runFilesAdd([]string{"notes.md"}) },
			wantErr: "-connection is required",
		},
		{
			name:    "files remove without names",
			run:     func() error { return runFilesRemove(nil) },
			wantErr: "usage: groundsql files remove",
		},
		{
			name:    "ask without connection",
			run:     func() error { return runAsk([]string{"count", "users"}) },
			wantErr: "-connection is required",
		},
		{
			name:    "ask without question",
			run:     func() error { return runAsk([]string{"-connection", "507f1f77bcf86cd799439011"}) },
			wantErr: "usage: groundsql ask",
		},
		{
			name:    "finetune without subcommand",
			run:     func() error { return runFinetune(nil) },
			wantErr: "usage: groundsql finetune",
		},
		{
			name:    "finetune create without connection",
			run:     func() error { return runFinetuneCreate(nil) },
			wantErr: "-connection is required",
		},
		{
			name:    "finetune get without id",
			run:     func() error { return runFinetuneGet(nil) },
			wantErr: "usage: groundsql finetune get",
		},
		{
			name:    "finetune file without id",
			run:     func() error { return runFinetuneFile(nil) },
			wantErr: "usage: groundsql finetune file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestPrintJSON(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	output := captureStdout(t, func() {
		if err := printJSON(payload{Name: "golden_sqls", Count: 3}); err != nil {
			t.Errorf("printJSON() = %v", err)
		}
	})

	var got payload
	if err := json.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v\nGot: %s", err, output)
	}
	if got.Name != "golden_sqls" || got.Count != 3 {
		t.Errorf("round-tripped payload = %+v", got)
	}
	if !strings.Contains(output, "\n  ") {
		t.Error("expected indented output")
	}
}

func TestReadInput(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pairs.json")
		if err := os.WriteFile(path, []byte(`[{"prompt_text":"q"}]`), 0o600); err != nil {
			t.Fatal(err)
		}

		data, err := readInput(path)
		if err != nil {
			t.Fatalf("readInput() = %v", err)
		}
		if !strings.Contains(string(data), "prompt_text") {
			t.Errorf("unexpected content: %s", data)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readInput(filepath.Join(t.TempDir(), "absent.json"))
		if err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("stdin", func(t *testing.T) {
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatal(err)
		}
		oldStdin := os.Stdin
		os.Stdin = r
		defer func() { os.Stdin = oldStdin }()

		if _, err := w.WriteString("[]"); err != nil {
			t.Fatal(err)
		}
		_ = w.Close()

		data, err := readInput("-")
		if err != nil {
			t.Fatalf("readInput(-) = %v", err)
		}
		if string(data) != "[]" {
			t.Errorf("readInput(-) = %q, want %q", data, "[]")
		}
	})
}

func TestReconcileLockPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path, err := reconcileLockPath()
	if err != nil {
		t.Fatalf("reconcileLockPath() = %v", err)
	}
	if filepath.Base(path) != "reconcile.lock" {
		t.Errorf("unexpected lock file name: %s", path)
	}
	if info, err := os.Stat(filepath.Dir(path)); err != nil || !info.IsDir() {
		t.Errorf("expected config directory to exist: %v", err)
	}

	// A second call reuses the directory.
	again, err := reconcileLockPath()
	if err != nil {
		t.Fatalf("second reconcileLockPath() = %v", err)
	}
	if again != path {
		t.Errorf("lock path changed between calls: %s vs %s", path, again)
	}
}
