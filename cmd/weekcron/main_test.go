package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNextCommand(t *testing.T) {
	t.Parallel()
	got, err := execute(t, "next", "Friday", "--at", "2022-02-16T01:00:00Z")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := "weekday: Fri\n" +
		"from:    2022-02-16T01:00:00Z\n" +
		"in:      169200000000000 ns (47h0m0s)\n" +
		"at:      2022-02-18T00:00:00Z\n"
	if got != want {
		t.Fatalf("output:\n%s\nwant:\n%s", got, want)
	}
}

func TestNextCommandSameWeekdayIsAWeekOut(t *testing.T) {
	t.Parallel()
	got, err := execute(t, "next", "wed", "--at", "2022-02-16T00:00:00Z")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !strings.Contains(got, "at:      2022-02-23T00:00:00Z") {
		t.Fatalf("output:\n%s", got)
	}
}

func TestNextCommandErrors(t *testing.T) {
	t.Parallel()
	for _, args := range [][]string{
		{"next"},
		{"next", "someday"},
		{"next", "mon", "--at", "yesterday"},
	} {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("%v: no error", args)
		}
	}
}

func TestSnapshotInspectEmptyStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "weekcron.yaml")
	body := "storage:\n  driver: file\n  path: " + filepath.Join(dir, "state") + "\n"
	if err := os.WriteFile(cfg, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := execute(t, "snapshot", "inspect", "--config", cfg)
	if err != nil {
		t.Fatalf("snapshot inspect: %v", err)
	}
	if got != "no snapshot stored (driver file)\n" {
		t.Fatalf("output = %q", got)
	}

	got, err = execute(t, "fires", "--config", cfg, "-n", "5")
	if err != nil {
		t.Fatalf("fires: %v", err)
	}
	if !strings.HasPrefix(got, "TASK") {
		t.Fatalf("fires output = %q", got)
	}
}

func TestMissingConfigFails(t *testing.T) {
	t.Parallel()
	if _, err := execute(t, "snapshot", "inspect", "--config", filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("no error for missing config")
	}
}

func TestTasksCommands(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "weekcron.yaml")
	body := "storage:\n  driver: file\n  path: " + filepath.Join(dir, "state") + "\n"
	if err := os.WriteFile(cfg, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := execute(t, "tasks", "list", "--config", cfg)
	if err != nil || got != "no tasks\n" {
		t.Fatalf("tasks list = %q, %v", got, err)
	}
	got, err = execute(t, "tasks", "greet", "fri", "Ana", "--config", cfg)
	if err != nil || got != "task 1: greet \"Ana\" every Fri\n" {
		t.Fatalf("tasks greet = %q, %v", got, err)
	}
	got, err = execute(t, "tasks", "add", "ping", "--every", "1m", "--times", "3", "--config", cfg)
	if err != nil || got != "task 2: \"ping\", iterations 3\n" {
		t.Fatalf("tasks add = %q, %v", got, err)
	}
	got, err = execute(t, "tasks", "list", "--config", cfg)
	if err != nil || !strings.Contains(got, `"Ana"`) || !strings.Contains(got, `"ping"`) {
		t.Fatalf("tasks list:\n%s\nerr: %v", got, err)
	}
	got, err = execute(t, "tasks", "dequeue", "1", "--config", cfg)
	if err != nil || got != "task 1 removed (\"Ana\")\n" {
		t.Fatalf("tasks dequeue = %q, %v", got, err)
	}
	got, err = execute(t, "tasks", "dequeue", "1", "--config", cfg)
	if err != nil || got != "task 1 not found\n" {
		t.Fatalf("tasks dequeue again = %q, %v", got, err)
	}
	got, err = execute(t, "tasks", "list", "--config", cfg)
	if err != nil || strings.Contains(got, `"Ana"`) {
		t.Fatalf("tasks list after dequeue:\n%s\nerr: %v", got, err)
	}

	for _, args := range [][]string{
		{"tasks", "greet", "someday", "Ana"},
		{"tasks", "greet", "mon", " "},
		{"tasks", "add", "x", "--every", "0s", "--forever"},
		{"tasks", "add", "x", "--times", "2", "--forever"},
		{"tasks", "dequeue", "abc"},
	} {
		if _, err := execute(t, append(args, "--config", cfg)...); err == nil {
			t.Errorf("%v: no error", args)
		}
	}
}
