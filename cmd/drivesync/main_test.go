package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/ligustah/drivesync/internal/testutils"
	"github.com/ligustah/drivesync/pkg/drive"
	"github.com/ligustah/drivesync/pkg/drive/drivetest"
)

// tree builds:
//
//	root: Overview
//	  A (Alpha): Notes (native document), Summary
//	  B (Beta): six invoices
func tree() *drivetest.Store {
	s := drivetest.New()
	s.AddFile("root", "r1", "Overview", drive.MimePDF, []byte("overview")).
		AddFolder("root", "A", "Alpha").
		AddFolder("root", "B", "Beta").
		AddFile("A", "a1", "Notes", drive.MimeNativeDocument, []byte("notes")).
		AddFile("A", "a2", "Summary", drive.MimePDF, []byte("summary"))
	for i := 0; i < 6; i++ {
		s.AddFile("B", fmt.Sprintf("b%d", i), fmt.Sprintf("invoice_%d", i), drive.MimePDF, []byte("invoice"))
	}
	return s
}

type result struct {
	code   int
	stdout string
	stderr string
}

// runCLI runs args against a Drive server for store, appending the
// credential and endpoint flags.
func runCLI(t *testing.T, store *drivetest.Store, args ...string) result {
	t.Helper()
	t.Setenv("DRIVESYNC_RETRY_ATTEMPTS", "0")

	server := testutils.StartDriveServer(t, store)
	creds, token := testutils.WriteCredentials(t)
	args = append(args,
		"--credentials", creds,
		"--token", token,
		"--api-endpoint", server.URL,
		"--log-level", "error",
	)

	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// dirEntries returns the sorted names below dir, relative to it.
func dirEntries(t *testing.T, dir string) []string {
	t.Helper()

	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	slices.Sort(names)
	return names
}

func TestRunNoCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != ExitInvalidArgs {
		t.Errorf("expected exit code %d, got %d", ExitInvalidArgs, code)
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--help"}, &stdout, &stderr); code != ExitSuccess {
		t.Errorf("expected exit code %d, got %d", ExitSuccess, code)
	}
	if !strings.Contains(stdout.String(), "sync") {
		t.Errorf("help output missing sync command:\n%s", stdout.String())
	}
}

func TestRunUnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"sync", "--bogus"}, &stdout, &stderr); code != ExitInvalidArgs {
		t.Errorf("expected exit code %d, got %d", ExitInvalidArgs, code)
	}
}

func TestSyncToDirectory(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "mirror")

	res := runCLI(t, tree(), "sync", "root", "-d", dest, "--manifest", "all_files.txt")
	if res.code != ExitSuccess {
		t.Fatalf("sync failed with exit code %d:\n%s", res.code, res.stderr)
	}

	want := map[string]string{
		"Overview.r1.pdf": "overview",
		"Notes.a1.docx":   "notes",
		"Summary.a2.pdf":  "summary",
	}
	for name, content := range want {
		data, err := os.ReadFile(filepath.Join(dest, name))
		if err != nil {
			t.Errorf("read %s: %v", name, err)
			continue
		}
		if string(data) != content {
			t.Errorf("%s: got %q, want %q", name, data, content)
		}
	}
	if _, err := os.Stat(filepath.Join(dest, "invoice_0.b0.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dropped invoice was downloaded (err=%v)", err)
	}

	manifest, err := os.ReadFile(filepath.Join(dest, "all_files.txt"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if lines := strings.Count(string(manifest), "\n"); lines != 3 {
		t.Errorf("expected 3 manifest lines, got %d", lines)
	}

	wantEntries := []string{"Notes.a1.docx", "Overview.r1.pdf", "Summary.a2.pdf", "all_files.txt"}
	if got := dirEntries(t, dest); !slices.Equal(got, wantEntries) {
		t.Errorf("destination holds %v, want %v", got, wantEntries)
	}

	for _, s := range []string{"2 folders", "9 files listed", "3 kept", "6 dropped", "Downloaded 3, skipped 0, failed 0"} {
		if !strings.Contains(res.stderr, s) {
			t.Errorf("summary missing %q:\n%s", s, res.stderr)
		}
	}
}

func TestSyncNestByFolder(t *testing.T) {
	dest := t.TempDir()

	res := runCLI(t, tree(), "sync", "root", "-d", dest, "--nest-by-folder", "--no-root")
	if res.code != ExitSuccess {
		t.Fatalf("sync failed with exit code %d:\n%s", res.code, res.stderr)
	}

	if _, err := os.Stat(filepath.Join(dest, "Alpha", "Notes.a1.docx")); err != nil {
		t.Errorf("expected nested object: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "Root", "Overview.r1.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("root file downloaded with --no-root (err=%v)", err)
	}
}

func TestSyncTransferFailures(t *testing.T) {
	store := tree()
	store.FailContent("a1", fmt.Errorf("export: %w", drive.ErrExportTooLarge))
	store.FailContent("a2", errors.New("connection reset"))

	res := runCLI(t, store, "sync", "root", "-d", t.TempDir())
	if res.code != ExitTransfersFailed {
		t.Fatalf("expected exit code %d, got %d:\n%s", ExitTransfersFailed, res.code, res.stderr)
	}
	if !strings.Contains(res.stderr, "Downloaded 1, skipped 1, failed 1") {
		t.Errorf("unexpected summary:\n%s", res.stderr)
	}
	if !strings.Contains(res.stderr, "Skipped Notes (a1): too large to export") {
		t.Errorf("missing export skip line:\n%s", res.stderr)
	}
	if !strings.Contains(res.stderr, "Failed Summary (a2)") {
		t.Errorf("missing failure line:\n%s", res.stderr)
	}
}

func TestSyncDryRun(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "mirror")

	res := runCLI(t, tree(), "sync", "root", "-d", dest, "--dry-run")
	if res.code != ExitSuccess {
		t.Fatalf("dry run failed with exit code %d:\n%s", res.code, res.stderr)
	}
	if _, err := os.Stat(filepath.Join(dest, "Overview.r1.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dry run downloaded a file (err=%v)", err)
	}
	if !strings.Contains(res.stderr, "Dry run") {
		t.Errorf("expected dry run notice:\n%s", res.stderr)
	}
}

func TestSyncInvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing destination", []string{"sync", "root"}},
		{"missing root", []string{"sync", "-d", "mem://"}},
		{"bad chunk size", []string{"sync", "root", "-d", "mem://", "--chunk-size", "lots"}},
		{"missing config file", []string{"sync", "root", "-d", "mem://", "--config", "/nonexistent/drivesync.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, tree(), tt.args...)
			if res.code != ExitInvalidArgs {
				t.Errorf("expected exit code %d, got %d:\n%s", ExitInvalidArgs, res.code, res.stderr)
			}
		})
	}
}

func TestSyncMissingCredentials(t *testing.T) {
	server := testutils.StartDriveServer(t, tree())

	var stdout, stderr bytes.Buffer
	code := run([]string{
		"sync", "root", "-d", "mem://",
		"--credentials", filepath.Join(t.TempDir(), "missing.json"),
		"--api-endpoint", server.URL,
	}, &stdout, &stderr)
	if code != ExitSourceError {
		t.Errorf("expected exit code %d, got %d:\n%s", ExitSourceError, code, stderr.String())
	}
}

func TestSyncConfigFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "mirror")
	cfgPath := filepath.Join(t.TempDir(), "drivesync.yaml")
	cfg := fmt.Sprintf("root: root\ndestination: %s\ninclude_root: false\n", dest)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	res := runCLI(t, tree(), "sync", "--config", cfgPath)
	if res.code != ExitSuccess {
		t.Fatalf("sync failed with exit code %d:\n%s", res.code, res.stderr)
	}
	if _, err := os.Stat(filepath.Join(dest, "Summary.a2.pdf")); err != nil {
		t.Errorf("expected object from configured destination: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "Overview.r1.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("root file downloaded with include_root false (err=%v)", err)
	}
}

func TestFolders(t *testing.T) {
	res := runCLI(t, tree(), "folders", "root")
	if res.code != ExitSuccess {
		t.Fatalf("folders failed with exit code %d:\n%s", res.code, res.stderr)
	}
	for _, line := range []string{"A\tAlpha\n", "B\tBeta\n"} {
		if !strings.Contains(res.stdout, line) {
			t.Errorf("output missing %q:\n%s", line, res.stdout)
		}
	}
}

func TestFoldersExclude(t *testing.T) {
	res := runCLI(t, tree(), "folders", "root", "--exclude", "B")
	if res.code != ExitSuccess {
		t.Fatalf("folders failed with exit code %d:\n%s", res.code, res.stderr)
	}
	if strings.Contains(res.stdout, "Beta") {
		t.Errorf("excluded folder printed:\n%s", res.stdout)
	}
}

func TestList(t *testing.T) {
	res := runCLI(t, tree(), "list", "root")
	if res.code != ExitSuccess {
		t.Fatalf("list failed with exit code %d:\n%s", res.code, res.stderr)
	}
	if lines := strings.Count(res.stdout, "\n"); lines != 3 {
		t.Errorf("expected 3 manifest lines, got %d:\n%s", lines, res.stdout)
	}
	if !strings.Contains(res.stdout, "Overview, r1, application/pdf\n") {
		t.Errorf("manifest missing root file:\n%s", res.stdout)
	}
	if !strings.Contains(res.stderr, `Dropped 6 files named like "invoice"`) {
		t.Errorf("expected dropped group report:\n%s", res.stderr)
	}
}

func TestListToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "manifest.txt")

	res := runCLI(t, tree(), "list", "root", "-o", out, "--mime-type", drive.MimeNativeDocument)
	if res.code != ExitSuccess {
		t.Fatalf("list failed with exit code %d:\n%s", res.code, res.stderr)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if string(data) != "Notes, a1, "+drive.MimeNativeDocument+"\n" {
		t.Errorf("unexpected manifest %q", data)
	}
	if res.stdout != "" {
		t.Errorf("expected empty stdout, got %q", res.stdout)
	}
}

func TestOpenBucket(t *testing.T) {
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "nested", "dest")
	bucket, err := openBucket(ctx, dir)
	if err != nil {
		t.Fatalf("open directory: %v", err)
	}
	if err := bucket.WriteAll(ctx, "a.txt", []byte("a"), nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	bucket.Close()
	if got := dirEntries(t, dir); !slices.Equal(got, []string{"a.txt"}) {
		t.Errorf("directory holds %v, want [a.txt]", got)
	}

	mem, err := openBucket(ctx, "mem://")
	if err != nil {
		t.Fatalf("open mem bucket: %v", err)
	}
	mem.Close()

	if _, err := openBucket(ctx, "nope://bucket"); err == nil {
		t.Error("expected error for unknown scheme")
	}
}
