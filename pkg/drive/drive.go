package drive

import (
	"context"
	"errors"
	"io"
)

// ErrExportTooLarge is returned (possibly wrapped) by Client.ExportContent when
// the remote refuses to export a document because it exceeds the export size
// limit. It is an expected condition, not a transfer failure.
var ErrExportTooLarge = errors.New("drive: file too large to export")

// RootName is the display name given to the walk root.
const RootName = "Root"

// FolderRef identifies a folder discovered during a walk.
type FolderRef struct {
	ID   string
	Name string
}

// FileRecord describes a file selected for mirroring.
// FolderName is empty when the containing folder is unknown.
type FileRecord struct {
	Name       string
	ID         string
	MimeType   string
	FolderName string
}

// Entry is a single child returned by a listing call. MimeType is empty when
// the listing only requested folders.
type Entry struct {
	ID       string
	Name     string
	MimeType string
}

// Page is one page of a listing. An empty NextPageToken marks the last page.
type Page struct {
	Entries       []Entry
	NextPageToken string
}

// Client is a handle to the remote store. A Client is owned by a single task
// and need not be safe for concurrent use.
type Client interface {
	// ListChildren returns one page of non-trashed children of parentID that
	// match q. Pass the previous page's NextPageToken to continue.
	ListChildren(ctx context.Context, parentID string, q Query, pageToken string) (Page, error)

	// ExportContent streams fileID converted to targetMimeType.
	ExportContent(ctx context.Context, fileID, targetMimeType string) (io.ReadCloser, error)

	// GetContent streams the raw bytes of fileID.
	GetContent(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Factory creates a new Client handle. Errors are fatal for the caller's stage
// (typically an authentication failure).
type Factory func(ctx context.Context) (Client, error)

// ListAll follows continuation tokens until the listing is exhausted and
// returns every entry. The first failing page fails the whole call.
func ListAll(ctx context.Context, c Client, parentID string, q Query) ([]Entry, error) {
	var (
		entries []Entry
		token   string
	)
	for {
		page, err := c.ListChildren(ctx, parentID, q, token)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page.Entries...)
		if page.NextPageToken == "" {
			return entries, nil
		}
		token = page.NextPageToken
	}
}
