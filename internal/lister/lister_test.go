package lister

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ligustah/drivesync/pkg/drive"
	"github.com/ligustah/drivesync/pkg/drive/drivetest"
)

func records(names ...string) []drive.FileRecord {
	out := make([]drive.FileRecord, len(names))
	for i, n := range names {
		out[i] = drive.FileRecord{Name: n, ID: fmt.Sprintf("id%d", i), MimeType: drive.MimePDF}
	}
	return out
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Report", "report"},
		{"Report_1", "report"},
		{"Report2", "report"},
		{"Report 03", "report"},
		{"ReportFinal", "reportfinal"},
		{"invoice-2024-01.pdf", "invoicepdf"},
		{"v2 Meeting Notes", "meetingnotes"},
		{"2023", ""},
		{"Q3 plan", "plan"},
		{"Budget (copy)", "budgetcopy"},
		{"Résumé", "résumé"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BaseName(tt.name); got != tt.want {
				t.Errorf("BaseName(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestFilterKeepsSmallGroups(t *testing.T) {
	in := records("Report", "Report_1", "Report2", "Report 03", "ReportFinal")

	got := Filter(in, DefaultMaxGroup)
	if len(got) != 5 {
		t.Fatalf("expected all 5 records to survive, got %d", len(got))
	}
	for i := range in {
		if got[i].ID != in[i].ID {
			t.Errorf("order changed at %d: got %s, want %s", i, got[i].ID, in[i].ID)
		}
	}
}

func TestFilterDropsLargeGroup(t *testing.T) {
	in := records("invoice", "Invoice_1", "invoice 2", "INVOICE3", "invoice-04", "invoice 5", "Contract")

	kept, dropped := FilterReport(in, DefaultMaxGroup)
	if len(kept) != 1 || kept[0].Name != "Contract" {
		t.Fatalf("expected only Contract to survive, got %+v", kept)
	}
	if len(dropped) != 1 {
		t.Fatalf("expected 1 dropped group, got %d", len(dropped))
	}
	if dropped[0].BaseName != "invoice" || len(dropped[0].Records) != 6 {
		t.Errorf("unexpected dropped group %q with %d records", dropped[0].BaseName, len(dropped[0].Records))
	}
}

func TestFilterThreshold(t *testing.T) {
	in := records("alpha", "alpha1", "alpha_2")

	if got := Filter(in, 3); len(got) != 0 {
		t.Errorf("group of 3 should be dropped at threshold 3, got %d", len(got))
	}
	if got := Filter(in, 4); len(got) != 3 {
		t.Errorf("group of 3 should be kept at threshold 4, got %d", len(got))
	}
	if got := Filter(in, 0); len(got) != 3 {
		t.Errorf("zero threshold should use the default, got %d", len(got))
	}
}

func TestFilterGroupBound(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	stems := []string{"report", "invoice", "notes", "plan", "budget", "minutes"}
	seps := []string{"", "_", " ", "-", "."}

	for round := 0; round < 50; round++ {
		n := r.IntN(60)
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("%s%s%d", stems[r.IntN(len(stems))], seps[r.IntN(len(seps))], r.IntN(100))
		}
		in := records(names...)

		out := Filter(in, DefaultMaxGroup)
		if len(out) > len(in) {
			t.Fatalf("round %d: output larger than input", round)
		}
		groups := make(map[string]int)
		for _, rec := range out {
			groups[BaseName(rec.Name)]++
		}
		for k, c := range groups {
			if c >= DefaultMaxGroup {
				t.Fatalf("round %d: group %q has %d members", round, k, c)
			}
		}
	}
}

func TestListFilesPaged(t *testing.T) {
	s := drivetest.New()
	s.PageSize = 2
	s.AddFolder("root", "F", "Folder").
		AddFile("F", "f1", "a.pdf", drive.MimePDF, nil).
		AddFile("F", "f2", "b.json", drive.MimeJSON, nil).
		AddFile("F", "f3", "c.png", "image/png", nil).
		AddFile("F", "f4", "d.docx", drive.MimeWordprocessing, nil).
		AddFolder("F", "sub", "Sub")

	client, err := s.Factory()(context.Background())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	got, err := ListFiles(context.Background(), client, drive.FolderRef{ID: "F", Name: "Folder"}, drive.DefaultMimeTypes)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d: %+v", len(got), got)
	}
	for _, r := range got {
		if r.FolderName != "Folder" {
			t.Errorf("expected folder name on %s, got %q", r.ID, r.FolderName)
		}
		if r.MimeType == "" {
			t.Errorf("expected mime type on %s", r.ID)
		}
	}
}

func TestListAll(t *testing.T) {
	s := drivetest.New()
	s.AddFolder("root", "A", "A").
		AddFolder("root", "B", "B").
		AddFolder("root", "C", "C").
		AddFile("A", "a1", "a1.pdf", drive.MimePDF, nil).
		AddFile("B", "b1", "b1.pdf", drive.MimePDF, nil).
		AddFile("B", "b2", "b2.txt", drive.MimePlainText, nil).
		AddFile("C", "c1", "c1.pdf", drive.MimePDF, nil)
	s.FailList("C", errors.New("transient"))

	folders := []drive.FolderRef{{ID: "A", Name: "A"}, {ID: "B", Name: "B"}, {ID: "C", Name: "C"}}
	got, err := ListAll(context.Background(), s.Factory(), folders, Options{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}

	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	if want := []string{"a1", "b1", "b2"}; fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", ids, want)
	}
	if h := s.Handles(); h != 3 {
		t.Errorf("expected one handle per folder, got %d", h)
	}
}

func TestListAllFactoryError(t *testing.T) {
	errAuth := errors.New("auth failed")
	s := drivetest.New()
	s.AddFolder("root", "A", "A")
	s.FailFactory(errAuth)

	_, err := ListAll(context.Background(), s.Factory(), []drive.FolderRef{{ID: "A"}}, Options{Logger: zap.NewNop()})
	if !errors.Is(err, errAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestListAllConcurrencyBound(t *testing.T) {
	s := drivetest.New()
	s.Delay = 5 * time.Millisecond
	var folders []drive.FolderRef
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("F%d", i)
		s.AddFolder("root", id, id).AddFile(id, id+"-file", "x.pdf", drive.MimePDF, nil)
		folders = append(folders, drive.FolderRef{ID: id, Name: id})
	}

	got, err := ListAll(context.Background(), s.Factory(), folders, Options{Concurrency: 3, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(got) != 30 {
		t.Errorf("expected 30 records, got %d", len(got))
	}
	if m := s.MaxInFlight(); m > 3 {
		t.Errorf("expected at most 3 concurrent listings, got %d", m)
	}
}

func TestWriteManifest(t *testing.T) {
	var buf bytes.Buffer
	in := []drive.FileRecord{
		{Name: "Report", ID: "1", MimeType: drive.MimePDF},
		{Name: "Plan, final", ID: "2", MimeType: drive.MimeJSON},
	}

	if err := WriteManifest(&buf, in); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	want := "Report, 1, application/pdf\nPlan, final, 2, application/json\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
