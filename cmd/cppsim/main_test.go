package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/cppsim/trace"
)

const countdown = `
input: "3"
functions:
  - name: main
    returns: int
    body:
      - decl: {name: n, type: int}
      - cin: [n]
      - while:
          cond: {">": [n, 0]}
          body:
            - cout: [n]
            - expr: {"x--": n}
      - return: 7
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "countdown.yaml", countdown)
	cfg := writeFile(t, dir, "cppsim.toml", "[memory]\nbackend = \"wazero\"\n\n[log]\nlevel = \"error\"\n")
	tracePath := filepath.Join(dir, "run.cbor")

	code, err := run(options{program: prog, configPath: cfg, tracePath: tracePath})
	if err != nil {
		t.Fatal(err)
	}
	if code != 7 {
		t.Errorf("exit code = %d, want 7", code)
	}

	tr, err := trace.ReadFile(tracePath)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Program != "countdown.yaml" || tr.Input != "3" || len(tr.Records) == 0 {
		t.Errorf("trace header = %q/%q with %d records", tr.Program, tr.Input, len(tr.Records))
	}
	var out string
	for _, r := range tr.Records {
		if r.Type == "output" {
			out += r.Message
		}
	}
	if out != "321" {
		t.Errorf("traced output = %q, want %q", out, "321")
	}
}

func TestRunStepLimit(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "countdown.yaml", countdown)
	code, err := run(options{program: prog, steps: 3})
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Errorf("exit code of a paused run = %d, want 0", code)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(options{program: filepath.Join(dir, "missing.yaml")}); err == nil {
		t.Error("expected error for a missing program")
	}
	prog := writeFile(t, dir, "countdown.yaml", countdown)
	bad := writeFile(t, dir, "bad.toml", "[memory]\nbackend = \"tape\"\n")
	if _, err := run(options{program: prog, configPath: bad}); err == nil {
		t.Error("expected error for an invalid config")
	}
}
