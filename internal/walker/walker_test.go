package walker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ligustah/drivesync/pkg/drive"
	"github.com/ligustah/drivesync/pkg/drive/drivetest"
)

func ids(refs []drive.FolderRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func opts() Options {
	return Options{Logger: zap.NewNop()}
}

func TestWalkSharedSubfolder(t *testing.T) {
	s := drivetest.New()
	s.AddFolder("root", "A", "A").
		AddFolder("root", "B", "B").
		AddFolder("A", "C", "C").
		Link("B", "C")

	got, err := Walk(context.Background(), s.Factory(), "root", opts())
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if want := []string{"A", "B", "C"}; !equal(ids(got), want) {
		t.Errorf("got %v, want %v", ids(got), want)
	}
	if n := s.ListCalls("C"); n != 1 {
		t.Errorf("expected C to be listed once, got %d", n)
	}
}

func TestWalkCycleTerminates(t *testing.T) {
	s := drivetest.New()
	s.AddFolder("root", "A", "A").
		AddFolder("A", "B", "B").
		Link("B", "A").
		Link("B", "root")

	got, err := Walk(context.Background(), s.Factory(), "root", opts())
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if want := []string{"A", "B"}; !equal(ids(got), want) {
		t.Errorf("got %v, want %v", ids(got), want)
	}
	for _, id := range []string{"root", "A", "B"} {
		if n := s.ListCalls(id); n != 1 {
			t.Errorf("expected %s to be listed once, got %d", id, n)
		}
	}
}

func TestWalkWaveOrder(t *testing.T) {
	s := drivetest.New()
	s.AddFolder("root", "A", "A").
		AddFolder("root", "B", "B").
		AddFolder("A", "A1", "A1").
		AddFolder("B", "B1", "B1").
		AddFolder("A1", "A2", "A2")

	got, err := Walk(context.Background(), s.Factory(), "root", opts())
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if want := []string{"A", "B", "A1", "B1", "A2"}; !equal(ids(got), want) {
		t.Errorf("got %v, want %v", ids(got), want)
	}
	if got[0].Name != "A" {
		t.Errorf("expected name A, got %q", got[0].Name)
	}
}

func TestWalkListingFailureYieldsNoChildren(t *testing.T) {
	s := drivetest.New()
	s.AddFolder("root", "A", "A").
		AddFolder("root", "B", "B").
		AddFolder("A", "A1", "A1").
		AddFolder("B", "B1", "B1")
	s.FailList("A", errors.New("transient"))

	got, err := Walk(context.Background(), s.Factory(), "root", opts())
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if want := []string{"A", "B", "B1"}; !equal(ids(got), want) {
		t.Errorf("got %v, want %v", ids(got), want)
	}
}

func TestWalkFactoryErrorIsFatal(t *testing.T) {
	errAuth := errors.New("auth failed")
	s := drivetest.New()
	s.AddFolder("root", "A", "A")
	s.FailFactory(errAuth)

	_, err := Walk(context.Background(), s.Factory(), "root", opts())
	if !errors.Is(err, errAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestWalkExclude(t *testing.T) {
	s := drivetest.New()
	s.AddFolder("root", "A", "A").
		AddFolder("root", "B", "B").
		AddFolder("B", "B1", "B1")

	o := opts()
	o.Exclude = []string{"B"}
	got, err := Walk(context.Background(), s.Factory(), "root", o)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if want := []string{"A"}; !equal(ids(got), want) {
		t.Errorf("got %v, want %v", ids(got), want)
	}
	if n := s.ListCalls("B"); n != 0 {
		t.Errorf("excluded folder should not be listed, got %d calls", n)
	}
}

func TestWalkPaginates(t *testing.T) {
	s := drivetest.New()
	s.PageSize = 2
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("F%d", i)
		s.AddFolder("root", id, id)
	}

	got, err := Walk(context.Background(), s.Factory(), "root", opts())
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("expected 5 folders, got %d", len(got))
	}
}

func TestWalkConcurrencyBound(t *testing.T) {
	s := drivetest.New()
	s.Delay = 5 * time.Millisecond
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("F%d", i)
		s.AddFolder("root", id, id)
	}

	o := opts()
	o.Concurrency = 4
	got, err := Walk(context.Background(), s.Factory(), "root", o)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(got) != 40 {
		t.Fatalf("expected 40 folders, got %d", len(got))
	}
	if m := s.MaxInFlight(); m > 4 {
		t.Errorf("expected at most 4 concurrent listings, got %d", m)
	}
	// one handle per listing task: root plus 40 children
	if h := s.Handles(); h != 41 {
		t.Errorf("expected 41 handles, got %d", h)
	}
}

func TestWalkContextCancelled(t *testing.T) {
	s := drivetest.New()
	s.AddFolder("root", "A", "A")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Walk(ctx, s.Factory(), "root", opts()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
