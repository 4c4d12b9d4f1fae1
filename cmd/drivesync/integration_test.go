//go:build integration

package main

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ligustah/drivesync/internal/testutils"
	"github.com/ligustah/drivesync/pkg/drive"
)

func TestCLIIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store := tree()
	large := testutils.Content("a3", 3*1024*1024)
	store.AddFile("A", "a3", "Dataset", drive.MimeJSON, large)

	t.Log("Starting Minio container...")
	minio := testutils.StartMinio(t, ctx, "cli-test-bucket")

	t.Run("sync", func(t *testing.T) {
		res := runCLI(t, store, "sync", "root",
			"-d", minio.URL,
			"-w", "4",
			"--chunk-size", "256KiB",
			"--manifest", "all_files.txt",
		)
		if res.code != ExitSuccess {
			t.Fatalf("sync failed with exit code %d:\n%s", res.code, res.stderr)
		}
	})

	bucket := minio.Open(t, ctx)

	t.Run("verify", func(t *testing.T) {
		testutils.ExpectObject(t, ctx, bucket, "Dataset.a3.json", large)

		wantKeys := []string{"Dataset.a3.json", "Notes.a1.docx", "Overview.r1.pdf", "Summary.a2.pdf", "all_files.txt"}
		if got := testutils.Keys(t, ctx, bucket); !slices.Equal(got, wantKeys) {
			t.Errorf("bucket holds %v, want %v", got, wantKeys)
		}

		manifest, err := bucket.ReadAll(ctx, "all_files.txt")
		if err != nil {
			t.Fatalf("read manifest: %v", err)
		}
		if n := bytes.Count(manifest, []byte("\n")); n != 4 {
			t.Errorf("expected 4 manifest lines, got %d", n)
		}
	})

	t.Run("resync_skips_existing", func(t *testing.T) {
		res := runCLI(t, store, "sync", "root", "-d", minio.URL, "--skip-existing")
		if res.code != ExitSuccess {
			t.Fatalf("resync failed with exit code %d:\n%s", res.code, res.stderr)
		}
		if !strings.Contains(res.stderr, "Downloaded 0, skipped 4, failed 0") {
			t.Errorf("expected every file skipped:\n%s", res.stderr)
		}
	})
}
