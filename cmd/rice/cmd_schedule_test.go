package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeBatch(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	return path
}

func TestReadBatchParsesTasks(t *testing.T) {
	path := writeBatch(t, `[
		{"id":"a","name":"analyze","priority":1,"dependencies":[],"task_type":"analysis","target":{"files":["main.go"],"scope":"file"}},
		{"id":"b","name":"refactor","priority":2,"dependencies":["a"],"task_type":"edit","target":{"files":[],"scope":"project"}}
	]`)

	tasks, err := readBatch(path)
	if err != nil {
		t.Fatalf("readBatch failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[1].Dependencies[0] != "a" {
		t.Errorf("dependencies not carried through: %+v", tasks[1])
	}
}

func TestReadBatchRejectsUnknownFields(t *testing.T) {
	path := writeBatch(t, `[{"id":"a","name":"x","bogus":true}]`)
	if _, err := readBatch(path); err == nil {
		t.Fatal("unknown fields must be rejected")
	}
}

func TestReadBatchRejectsEmptyID(t *testing.T) {
	path := writeBatch(t, `[{"id":"","name":"x"}]`)
	if _, err := readBatch(path); err == nil {
		t.Fatal("empty task id must be rejected")
	}
}

func TestReadBatchRejectsUnknownScope(t *testing.T) {
	path := writeBatch(t, `[{"id":"a","name":"x","target":{"files":[],"scope":"galaxy"}}]`)
	if _, err := readBatch(path); err == nil {
		t.Fatal("unknown scope must be rejected")
	}
}

func TestScheduleCmdReportsCycleExitCode(t *testing.T) {
	logger = zap.NewNop()
	path := writeBatch(t, `[
		{"id":"x","name":"x","dependencies":["z"]},
		{"id":"y","name":"y","dependencies":["x"]},
		{"id":"z","name":"z","dependencies":["y"]}
	]`)

	scheduleCmd.SetOut(new(bytes.Buffer))
	err := scheduleCmd.RunE(scheduleCmd, []string{path})
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != exitCycle {
		t.Fatalf("expected cycle exit code %d, got %v", exitCycle, err)
	}
}

func TestScheduleCmdEmitsPhases(t *testing.T) {
	logger = zap.NewNop()
	path := writeBatch(t, `[
		{"id":"a","name":"a","priority":1},
		{"id":"b","name":"b","priority":2,"dependencies":["a"]},
		{"id":"c","name":"c","priority":2,"dependencies":["a"]},
		{"id":"d","name":"d","priority":3,"dependencies":["b","c"]}
	]`)

	var out bytes.Buffer
	scheduleCmd.SetOut(&out)
	if err := scheduleCmd.RunE(scheduleCmd, []string{path}); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{`"phase": 1`, `"phase": 2`, `"phase": 3`, `"a"`, `"d"`} {
		if !bytes.Contains([]byte(got), []byte(want)) {
			t.Errorf("output missing %s:\n%s", want, got)
		}
	}
}
