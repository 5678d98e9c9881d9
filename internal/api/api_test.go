package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inkstream/inkstream/internal/api"
	"github.com/inkstream/inkstream/internal/auth"
	"github.com/inkstream/inkstream/internal/hub"
	"github.com/inkstream/inkstream/internal/relay"
	"github.com/inkstream/inkstream/internal/store"
)

// --- test helpers -----------------------------------------------------------

type env struct {
	handler http.Handler
	store   *store.Store
	auth    *auth.Service
}

// newEnv wires a full handler around a temp SQLite store, a no-op producer
// relay, and an empty hub.
func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "notes.db"), time.Second)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	producer := relay.ProducerFunc(func(ctx context.Context, text string, emit func(string)) error {
		emit("polished: " + text)
		return nil
	})
	authSvc := auth.New("test-secret", time.Hour)
	h := api.New(st, authSvc, relay.New(producer, 10), hub.New(st), t.TempDir(), nil)
	return &env{handler: h, store: st, auth: authSvc}
}

// register creates an account and returns its bearer token.
func (e *env) register(t *testing.T, username string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/register", "",
		map[string]string{"username": username, "password": "hunter22"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: status %d (body: %s)", rr.Code, rr.Body.String())
	}
	rr = e.do(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": username, "password": "hunter22"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: status %d (body: %s)", rr.Code, rr.Body.String())
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, rr, &tok)
	return tok.AccessToken
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- auth ---------------------------------------------------------------------

func TestRegister_Validation(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"short username", "ab", "hunter22"},
		{"short password", "alice", "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodPost, "/api/auth/register", "",
				map[string]string{"username": tt.username, "password": tt.password})
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rr.Code)
			}
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice")

	rr := e.do(t, http.MethodPost, "/api/auth/register", "",
		map[string]string{"username": "alice", "password": "hunter22"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice")

	rr := e.do(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": "alice", "password": "wrong-password"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rr.Code)
	}
}

func TestMe(t *testing.T) {
	e := newEnv(t)
	token := e.register(t, "alice")

	rr := e.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", rr.Code, rr.Body.String())
	}
	var u map[string]any
	decode(t, rr, &u)
	if u["username"] != "alice" {
		t.Errorf("username: got %v, want alice", u["username"])
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/api/auth/me", "/api/notes"} {
		rr := e.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: status got %d, want 401", path, rr.Code)
		}
	}
}

// --- notes ----------------------------------------------------------------------

func TestNotes_CRUD(t *testing.T) {
	e := newEnv(t)
	token := e.register(t, "alice")

	// Create.
	rr := e.do(t, http.MethodPost, "/api/notes", token,
		map[string]string{"title": "T", "content": "C"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: status %d (body: %s)", rr.Code, rr.Body.String())
	}
	var created store.NotePayload
	decode(t, rr, &created)
	if created.ID == "" || created.Title != "T" {
		t.Fatalf("create: got %+v", created)
	}

	// Read.
	rr = e.do(t, http.MethodGet, "/api/notes/"+created.ID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: status %d", rr.Code)
	}

	// Update title only.
	rr = e.do(t, http.MethodPut, "/api/notes/"+created.ID, token,
		map[string]string{"title": "T2"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: status %d (body: %s)", rr.Code, rr.Body.String())
	}
	var updated store.NotePayload
	decode(t, rr, &updated)
	if updated.Title != "T2" || updated.Content != "C" {
		t.Errorf("update: got %+v, want title T2 with content unchanged", updated)
	}

	// List.
	rr = e.do(t, http.MethodGet, "/api/notes", token, nil)
	var list []store.NotePayload
	decode(t, rr, &list)
	if len(list) != 1 {
		t.Fatalf("list: got %d notes, want 1", len(list))
	}

	// Delete.
	rr = e.do(t, http.MethodDelete, "/api/notes/"+created.ID, token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rr.Code)
	}
	rr = e.do(t, http.MethodGet, "/api/notes/"+created.ID, token, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", rr.Code)
	}
}

func TestNotes_ForeignNoteIs404(t *testing.T) {
	e := newEnv(t)
	aliceTok := e.register(t, "alice")
	bobTok := e.register(t, "bobby")

	rr := e.do(t, http.MethodPost, "/api/notes", aliceTok,
		map[string]string{"title": "private", "content": ""})
	var n store.NotePayload
	decode(t, rr, &n)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rr := e.do(t, method, "/api/notes/"+n.ID, bobTok, map[string]string{})
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s foreign note: status %d, want 404", method, rr.Code)
		}
	}
}

// --- ai -------------------------------------------------------------------------

func TestProcessText_StreamsSSE(t *testing.T) {
	e := newEnv(t)
	token := e.register(t, "alice")

	rr := e.do(t, http.MethodPost, "/api/ai/process", token,
		map[string]string{"text": "draft paragraph that is long enough"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type: got %q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `data: {"content":"polished: draft paragraph that is long enough"}`) {
		t.Errorf("body missing content frame: %q", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("body does not end with the terminal frame: %q", body)
	}
}

func TestProcessText_EmptyTextRejected(t *testing.T) {
	e := newEnv(t)
	token := e.register(t, "alice")

	rr := e.do(t, http.MethodPost, "/api/ai/process", token,
		map[string]string{"text": "   "})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

// --- upload -----------------------------------------------------------------------

func TestUpload_RoundTrip(t *testing.T) {
	e := newEnv(t)
	token := e.register(t, "alice")

	var buf bytes.Buffer
	mw := newMultipart(t, &buf, "photo.png", []byte("not really a png"))

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if !strings.HasPrefix(resp["url"], "/static/uploads/") {
		t.Errorf("url: got %q", resp["url"])
	}
	if !strings.HasSuffix(resp["url"], ".png") {
		t.Errorf("url should keep the extension: got %q", resp["url"])
	}
}

// --- metrics ------------------------------------------------------------------------

func TestMetrics_Exposition(t *testing.T) {
	e := newEnv(t)
	token := e.register(t, "alice")
	e.do(t, http.MethodPost, "/api/notes", token, map[string]string{"title": "a"})

	rr := e.do(t, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"inkstream_ws_connections 0",
		"inkstream_ws_groups 0",
		"inkstream_relay_sessions_active 0",
		"inkstream_notes_total 1",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics missing %q; body:\n%s", metric, body)
		}
	}
}

// --- misc -------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status field: got %q, want ok", resp["status"])
	}
}

func TestCORS_PreflightAllowedOrigin(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "notes.db"), time.Second)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	producer := relay.ProducerFunc(func(context.Context, string, func(string)) error { return nil })
	h := api.New(st, auth.New("s", time.Hour), relay.New(producer, 10), hub.New(st),
		t.TempDir(), []string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodOptions, "/api/notes", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status: got %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin: got %q", got)
	}

	// Unlisted origin gets no CORS headers.
	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for unlisted origin: got %q, want empty", got)
	}
}

// newMultipart writes a single-file multipart body and returns its
// Content-Type header value.
func newMultipart(t *testing.T, buf *bytes.Buffer, filename string, data []byte) string {
	t.Helper()
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return mw.FormDataContentType()
}
