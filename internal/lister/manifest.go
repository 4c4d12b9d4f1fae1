package lister

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ligustah/drivesync/pkg/drive"
)

// WriteManifest writes one "name, id, mimeType" line per record.
func WriteManifest(w io.Writer, records []drive.FileRecord) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := fmt.Fprintf(bw, "%s, %s, %s\n", r.Name, r.ID, r.MimeType); err != nil {
			return fmt.Errorf("lister: write manifest: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("lister: write manifest: %w", err)
	}
	return nil
}
