//go:build integration

package testutils

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"slices"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
	"github.com/testcontainers/testcontainers-go/wait"
	"gocloud.dev/blob"
)

const (
	minioUser     = "minioadmin"
	minioPassword = "minioadmin"
)

// Content returns size bytes of content for the Drive file id. The bytes
// depend on id, so an object written under the wrong key does not compare
// equal to the file it was expected to hold.
func Content(id string, size int) []byte {
	h := fnv.New32a()
	h.Write([]byte(id))
	seed := h.Sum32()

	data := make([]byte, size)
	for i := range data {
		seed = seed*1664525 + 1013904223
		data[i] = byte(seed >> 24)
	}
	return data
}

// Minio is a running MinIO server holding one empty bucket.
type Minio struct {
	Bucket   string
	Endpoint string
	// URL opens Bucket through gocloud's s3blob driver.
	URL string
}

// StartMinio runs a MinIO container, creates bucket inside it and exports the
// AWS credentials s3blob reads. The container is removed when the test ends.
func StartMinio(t *testing.T, ctx context.Context, bucket string) *Minio {
	t.Helper()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start minio: %v", err)
	}

	mkBucket := fmt.Sprintf("mc alias set local http://127.0.0.1:9000 %s %s >/dev/null && mc mb local/%s",
		minioUser, minioPassword, bucket)
	code, out, err := ctr.Exec(ctx, []string{"sh", "-c", mkBucket}, tcexec.Multiplexed())
	if err != nil {
		t.Fatalf("create bucket %s: %v", bucket, err)
	}
	if code != 0 {
		msg, _ := io.ReadAll(out)
		t.Fatalf("create bucket %s: exit %d: %s", bucket, code, msg)
	}

	endpoint, err := ctr.PortEndpoint(ctx, "9000/tcp", "")
	if err != nil {
		t.Fatalf("minio endpoint: %v", err)
	}

	t.Setenv("AWS_ACCESS_KEY_ID", minioUser)
	t.Setenv("AWS_SECRET_ACCESS_KEY", minioPassword)

	return &Minio{
		Bucket:   bucket,
		Endpoint: endpoint,
		URL: fmt.Sprintf("s3://%s?endpoint=http://%s&use_path_style=true&disable_https=true&region=us-east-1",
			bucket, endpoint),
	}
}

// Open opens the bucket. It is closed when the test ends.
func (m *Minio) Open(t *testing.T, ctx context.Context) *blob.Bucket {
	t.Helper()

	b, err := blob.OpenBucket(ctx, m.URL)
	if err != nil {
		t.Fatalf("open %s: %v", m.URL, err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// Keys returns every key in b, sorted.
func Keys(t *testing.T, ctx context.Context, b *blob.Bucket) []string {
	t.Helper()

	var keys []string
	iter := b.List(nil)
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("list bucket: %v", err)
		}
		keys = append(keys, obj.Key)
	}
	slices.Sort(keys)
	return keys
}

// ExpectObject streams key from b and fails the test unless it holds exactly
// want.
func ExpectObject(t *testing.T, ctx context.Context, b *blob.Bucket, key string, want []byte) {
	t.Helper()

	r, err := b.NewReader(ctx, key, nil)
	if err != nil {
		t.Fatalf("open %s: %v", key, err)
	}
	defer r.Close()

	buf := make([]byte, 256*1024)
	var off int
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if off+n > len(want) {
				t.Fatalf("%s: longer than the %d bytes expected", key, len(want))
			}
			for i := 0; i < n; i++ {
				if buf[i] != want[off+i] {
					t.Fatalf("%s: first difference at byte %d", key, off+i)
				}
			}
			off += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("%s: read at byte %d: %v", key, off, err)
		}
	}
	if off != len(want) {
		t.Fatalf("%s: got %d bytes, want %d", key, off, len(want))
	}
}
