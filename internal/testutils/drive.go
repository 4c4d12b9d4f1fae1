// Package testutils provides shared test infrastructure: a Drive REST server
// backed by an in-memory tree, credential fixtures, and MinIO containers for
// integration tests.
package testutils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/ligustah/drivesync/pkg/drive"
	"github.com/ligustah/drivesync/pkg/drive/drivetest"
)

// AccessToken is the bearer token accepted by DriveServer and written by
// WriteCredentials.
const AccessToken = "test-access-token"

var (
	parentRe = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)
	mimeRe   = regexp.MustCompile(`mimeType(!?)='((?:[^'\\]|\\.)*)'`)
)

// DriveServer serves the Drive v3 listing, export and media endpoints from a
// drivetest.Store. Use URL as the API endpoint.
type DriveServer struct {
	*httptest.Server
	Store *drivetest.Store
}

// StartDriveServer starts a DriveServer for store. It is closed when the test
// ends.
func StartDriveServer(t *testing.T, store *drivetest.Store) *DriveServer {
	t.Helper()

	ds := &DriveServer{Store: store}
	ds.Server = httptest.NewServer(http.HandlerFunc(ds.serve))
	t.Cleanup(ds.Close)
	return ds
}

func (ds *DriveServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+AccessToken {
		writeError(w, http.StatusUnauthorized, "authError", "invalid credentials")
		return
	}

	client, err := ds.Store.Factory()(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authError", err.Error())
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case path == "files":
		ds.list(w, r, client)
	case strings.HasPrefix(path, "files/") && strings.HasSuffix(path, "/export"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "files/"), "/export")
		body, err := client.ExportContent(r.Context(), id, r.URL.Query().Get("mimeType"))
		stream(w, body, err)
	case strings.HasPrefix(path, "files/") && r.URL.Query().Get("alt") == "media":
		body, err := client.GetContent(r.Context(), strings.TrimPrefix(path, "files/"))
		stream(w, body, err)
	default:
		writeError(w, http.StatusNotFound, "notFound", "unknown endpoint")
	}
}

type listResponse struct {
	NextPageToken string      `json:"nextPageToken,omitempty"`
	Files         []listEntry `json:"files"`
}

type listEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
}

func (ds *DriveServer) list(w http.ResponseWriter, r *http.Request, client drive.Client) {
	parent, q, ok := parseQuery(r.URL.Query().Get("q"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid", "unsupported query")
		return
	}

	page, err := client.ListChildren(r.Context(), parent, q, r.URL.Query().Get("pageToken"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "backendError", err.Error())
		return
	}

	resp := listResponse{NextPageToken: page.NextPageToken, Files: []listEntry{}}
	for _, e := range page.Entries {
		resp.Files = append(resp.Files, listEntry{ID: e.ID, Name: e.Name, MimeType: e.MimeType})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// parseQuery reverses drive.Query.Expression.
func parseQuery(expr string) (string, drive.Query, bool) {
	m := parentRe.FindStringSubmatch(expr)
	if m == nil {
		return "", drive.Query{}, false
	}
	parent := unescape(m[1])

	var mimeTypes []string
	for _, mm := range mimeRe.FindAllStringSubmatch(expr, -1) {
		if mm[1] == "!" {
			return parent, drive.FileQuery(nil), true
		}
		mimeTypes = append(mimeTypes, unescape(mm[2]))
	}
	if len(mimeTypes) == 1 && mimeTypes[0] == drive.MimeFolder {
		return parent, drive.FolderQuery(), true
	}
	return parent, drive.FileQuery(mimeTypes), true
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\'`, `'`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

func stream(w http.ResponseWriter, body io.ReadCloser, err error) {
	switch {
	case errors.Is(err, drive.ErrExportTooLarge):
		writeError(w, http.StatusForbidden, "exportSizeLimitExceeded", "This file is too large to be exported.")
		return
	case errors.Is(err, drivetest.ErrNotFound):
		writeError(w, http.StatusNotFound, "notFound", "File not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "backendError", err.Error())
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, body)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Errors  []struct {
				Reason  string `json:"reason"`
				Message string `json:"message"`
			} `json:"errors"`
		} `json:"error"`
	}
	body.Error.Code = status
	body.Error.Message = message
	body.Error.Errors = append(body.Error.Errors, struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}{reason, message})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

const clientSecret = `{"installed":{"client_id":"test.apps.googleusercontent.com","client_secret":"secret",
"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
"redirect_uris":["http://localhost"]}}`

// WriteCredentials writes an installed-app client secret and a saved token
// holding AccessToken into a temp dir. The token does not expire, so no
// refresh is attempted.
func WriteCredentials(t *testing.T) (credentials, token string) {
	t.Helper()

	dir := t.TempDir()
	credentials = filepath.Join(dir, "credentials.json")
	token = filepath.Join(dir, "token.json")

	if err := os.WriteFile(credentials, []byte(clientSecret), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
	tok := `{"access_token":"` + AccessToken + `","token_type":"Bearer","expiry":"2999-01-01T00:00:00Z"}`
	if err := os.WriteFile(token, []byte(tok), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	return credentials, token
}
