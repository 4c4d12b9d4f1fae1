// Package drivetest provides an in-memory drive.Client for tests.
package drivetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ligustah/drivesync/pkg/drive"
)

// ErrNotFound is returned for unknown file ids.
var ErrNotFound = errors.New("drivetest: not found")

type node struct {
	name     string
	mimeType string
	content  []byte
}

// Store is an in-memory folder tree. Children may be linked under more than
// one parent, and links may form cycles.
type Store struct {
	// PageSize limits entries per listing page. Zero means unlimited.
	PageSize int

	// Delay is applied to every listing and content call.
	Delay time.Duration

	mu          sync.Mutex
	nodes       map[string]*node
	children    map[string][]string
	listErr     map[string]error
	contentErr  map[string]error
	factoryErr  error
	listCalls   map[string]int
	exports     map[string]string
	gets        map[string]int
	handles     int
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// New returns an empty store.
func New() *Store {
	return &Store{
		nodes:      make(map[string]*node),
		children:   make(map[string][]string),
		listErr:    make(map[string]error),
		contentErr: make(map[string]error),
		listCalls:  make(map[string]int),
		exports:    make(map[string]string),
		gets:       make(map[string]int),
	}
}

// AddFolder creates folder id under parent.
func (s *Store) AddFolder(parent, id, name string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[id] = &node{name: name, mimeType: drive.MimeFolder}
	s.children[parent] = append(s.children[parent], id)
	return s
}

// AddFile creates file id under parent.
func (s *Store) AddFile(parent, id, name, mimeType string, content []byte) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[id] = &node{name: name, mimeType: mimeType, content: content}
	s.children[parent] = append(s.children[parent], id)
	return s
}

// Link adds an existing node as a child of another parent.
func (s *Store) Link(parent, id string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children[parent] = append(s.children[parent], id)
	return s
}

// FailList makes every listing of parent fail with err.
func (s *Store) FailList(parent string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr[parent] = err
}

// FailContent makes export and get calls for id fail with err.
func (s *Store) FailContent(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contentErr[id] = err
}

// FailFactory makes every subsequent factory call fail with err.
func (s *Store) FailFactory(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factoryErr = err
}

// Factory returns a drive.Factory creating handles backed by s.
func (s *Store) Factory() drive.Factory {
	return func(ctx context.Context) (drive.Client, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.factoryErr != nil {
			return nil, s.factoryErr
		}
		s.handles++
		return &handle{store: s}, nil
	}
}

// Handles returns how many handles the factory created.
func (s *Store) Handles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles
}

// ListCalls returns how many first-page listings were made for parent.
func (s *Store) ListCalls(parent string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls[parent]
}

// ExportTarget returns the target mime type of the last export of id.
func (s *Store) ExportTarget(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.exports[id]
	return m, ok
}

// Gets returns how many direct content calls were made for id.
func (s *Store) Gets(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[id]
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (s *Store) MaxInFlight() int {
	return int(s.maxInFlight.Load())
}

func (s *Store) enter(ctx context.Context) error {
	n := s.inFlight.Add(1)
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	return ctx.Err()
}

func (s *Store) leave() {
	s.inFlight.Add(-1)
}

type handle struct {
	store *Store
}

func (h *handle) ListChildren(ctx context.Context, parentID string, q drive.Query, pageToken string) (drive.Page, error) {
	s := h.store
	defer s.leave()
	if err := s.enter(ctx); err != nil {
		return drive.Page{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pageToken == "" {
		s.listCalls[parentID]++
	}
	if err := s.listErr[parentID]; err != nil {
		return drive.Page{}, err
	}

	var matched []drive.Entry
	for _, id := range s.children[parentID] {
		n := s.nodes[id]
		if n == nil || !q.Matches(n.mimeType) {
			continue
		}
		e := drive.Entry{ID: id, Name: n.name}
		if !q.FoldersOnly {
			e.MimeType = n.mimeType
		}
		matched = append(matched, e)
	}

	offset := 0
	if pageToken != "" {
		o, err := strconv.Atoi(pageToken)
		if err != nil || o < 0 || o > len(matched) {
			return drive.Page{}, fmt.Errorf("drivetest: invalid page token %q", pageToken)
		}
		offset = o
	}

	end := len(matched)
	if s.PageSize > 0 && offset+s.PageSize < end {
		end = offset + s.PageSize
	}

	page := drive.Page{Entries: append([]drive.Entry(nil), matched[offset:end]...)}
	if end < len(matched) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (h *handle) ExportContent(ctx context.Context, fileID, targetMimeType string) (io.ReadCloser, error) {
	s := h.store
	defer s.leave()
	if err := s.enter(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports[fileID] = targetMimeType
	return s.content(fileID)
}

func (h *handle) GetContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	s := h.store
	defer s.leave()
	if err := s.enter(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets[fileID]++
	return s.content(fileID)
}

// content must be called with s.mu held.
func (s *Store) content(id string) (io.ReadCloser, error) {
	if err := s.contentErr[id]; err != nil {
		return nil, err
	}
	n, ok := s.nodes[id]
	if !ok || n.mimeType == drive.MimeFolder {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(n.content)), nil
}
