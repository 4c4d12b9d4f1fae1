//go:build integration

package downloader_test

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/drivesync/internal/downloader"
	"github.com/ligustah/drivesync/internal/driveapi"
	"github.com/ligustah/drivesync/internal/testutils"
	"github.com/ligustah/drivesync/pkg/drive"
	"github.com/ligustah/drivesync/pkg/drive/drivetest"
)

func TestIntegrationDownloadToMinio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	sizes := []int64{
		1024,             // 1KB
		1024 * 1024,      // 1MB
		10 * 1024 * 1024, // 10MB
		25 * 1024 * 1024, // 25MB
	}

	t.Log("Generating test data...")
	store := drivetest.New()
	var records []drive.FileRecord
	data := make(map[string][]byte)
	for i, size := range sizes {
		id := fmt.Sprintf("file%d", i)
		mimeType := drive.MimePDF
		if i%2 == 1 {
			mimeType = drive.MimeNativeDocument
		}
		data[id] = testutils.Content(id, int(size))
		store.AddFile("root", id, fmt.Sprintf("File %d", i), mimeType, data[id])
		records = append(records, drive.FileRecord{Name: fmt.Sprintf("File %d", i), ID: id, MimeType: mimeType, FolderName: "Docs"})
	}

	t.Log("Starting Drive test server...")
	server := testutils.StartDriveServer(t, store)

	t.Log("Starting Minio container...")
	minio := testutils.StartMinio(t, ctx, "test-bucket")
	bucket := minio.Open(t, ctx)

	opts := driveapi.DefaultOptions()
	opts.Endpoint = server.URL
	factory := driveapi.NewFactory(opts, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: testutils.AccessToken}), nil)

	outcomes, err := downloader.DownloadAll(ctx, factory, records, bucket, downloader.Options{
		Workers:      3,
		ChunkSize:    1024 * 1024,
		NestByFolder: true,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("DownloadAll: %v", err)
	}

	var wantKeys []string
	for _, o := range outcomes {
		wantKeys = append(wantKeys, o.Key)
		if o.Status != downloader.StatusSuccess {
			t.Fatalf("%s: status %s: %v", o.Record.ID, o.Status, o.Err)
		}
		if o.Bytes != int64(len(data[o.Record.ID])) {
			t.Errorf("%s: wrote %d bytes, want %d", o.Record.ID, o.Bytes, len(data[o.Record.ID]))
		}

		testutils.ExpectObject(t, ctx, bucket, o.Key, data[o.Record.ID])

		attrs, err := bucket.Attributes(ctx, o.Key)
		if err != nil {
			t.Fatalf("attributes %s: %v", o.Key, err)
		}
		if attrs.Metadata["drive_id"] != o.Record.ID {
			t.Errorf("%s: metadata drive_id = %q", o.Key, attrs.Metadata["drive_id"])
		}
	}
	slices.Sort(wantKeys)
	if got := testutils.Keys(t, ctx, bucket); !slices.Equal(got, wantKeys) {
		t.Errorf("bucket holds %v, want %v", got, wantKeys)
	}

	t.Run("skip_existing", func(t *testing.T) {
		outcomes, err := downloader.DownloadAll(ctx, factory, records, bucket, downloader.Options{
			Workers:      3,
			NestByFolder: true,
			SkipExisting: true,
			Logger:       zap.NewNop(),
		})
		if err != nil {
			t.Fatalf("DownloadAll: %v", err)
		}
		if c := downloader.Summarize(outcomes); c.Skipped != len(records) {
			t.Errorf("expected every file skipped, got %+v", c)
		}
	})
}
