package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/inkstream/inkstream/internal/auth"
	"github.com/inkstream/inkstream/internal/relay"
	"github.com/inkstream/inkstream/internal/store"
)

// maxUploadSize bounds one uploaded file.
const maxUploadSize = 10 << 20

// Handler is the HTTP handler for all /api/* endpoints plus /metrics.
type Handler struct {
	store     *store.Store
	auth      *auth.Service
	relay     *relay.Relay
	stats     HubStats
	uploadDir string
	mux       *http.ServeMux
	cors      func(http.Handler) http.Handler
}

// HubStats is the hub's contribution to /metrics.
type HubStats interface {
	Count() int
	GroupCount() int
}

// New creates a Handler wired to its collaborators and registers all routes.
// Routes below /api (except auth and health) require a bearer token.
func New(st *store.Store, authSvc *auth.Service, rl *relay.Relay, stats HubStats, uploadDir string, corsOrigins []string) http.Handler {
	h := &Handler{
		store:     st,
		auth:      authSvc,
		relay:     rl,
		stats:     stats,
		uploadDir: uploadDir,
		mux:       http.NewServeMux(),
		cors:      corsMiddleware(corsOrigins),
	}

	h.mux.HandleFunc("/api/health", h.health)
	h.mux.HandleFunc("/api/auth/register", h.register)
	h.mux.HandleFunc("/api/auth/login", h.login)
	h.mux.Handle("/api/auth/me", authSvc.Middleware(http.HandlerFunc(h.me)))
	h.mux.Handle("/api/notes", authSvc.Middleware(http.HandlerFunc(h.notes)))
	h.mux.Handle("/api/notes/", authSvc.Middleware(http.HandlerFunc(h.noteByID))) // subtree — extracts {id}
	h.mux.Handle("/api/ai/process", authSvc.Middleware(http.HandlerFunc(h.processText)))
	h.mux.Handle("/api/upload", authSvc.Middleware(http.HandlerFunc(h.upload)))
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.cors(h.mux).ServeHTTP(w, r)
}

// --- route handlers ----------------------------------------------------------

// health returns GET /api/health — liveness.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

// register handles POST /api/auth/register.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Username) < 3 {
		jsonErr(w, http.StatusBadRequest, "username must be at least 3 characters")
		return
	}
	if len(req.Password) < 6 {
		jsonErr(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	u, err := h.store.CreateUser(r.Context(), req.Username, hash)
	if errors.Is(err, store.ErrExists) {
		jsonErr(w, http.StatusBadRequest, "username already taken")
		return
	}
	if err != nil {
		slog.Error("api: create user", "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
		return
	}

	jsonResp(w, http.StatusCreated, toUserResponse(u))
}

// login handles POST /api/auth/login.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.store.UserByUsername(r.Context(), req.Username)
	if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		jsonErr(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := h.auth.IssueToken(u.ID)
	if err != nil {
		slog.Error("api: issue token", "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	jsonResp(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.auth.TTL().Hours()),
	})
}

// me returns GET /api/auth/me — the authenticated account.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, _ := auth.UserID(r.Context())
	u, err := h.store.UserByID(r.Context(), userID)
	if err != nil {
		jsonErr(w, http.StatusNotFound, "user not found")
		return
	}
	jsonResp(w, http.StatusOK, toUserResponse(u))
}

// notes handles GET (list) and POST (create) on /api/notes.
func (h *Handler) notes(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	switch r.Method {
	case http.MethodGet:
		notes, err := h.store.NotesByUser(r.Context(), userID)
		if err != nil {
			slog.Error("api: list notes", "err", err)
			jsonErr(w, http.StatusInternalServerError, "internal error")
			return
		}
		out := make([]store.NotePayload, 0, len(notes))
		for _, n := range notes {
			out = append(out, n.Payload())
		}
		jsonResp(w, http.StatusOK, out)

	case http.MethodPost:
		var req noteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		n, err := h.store.CreateNote(r.Context(), userID, req.Title, req.Content)
		if err != nil {
			slog.Error("api: create note", "err", err)
			jsonErr(w, http.StatusInternalServerError, "internal error")
			return
		}
		jsonResp(w, http.StatusCreated, n.Payload())

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// noteByID handles GET/PUT/DELETE on /api/notes/{id}.
func (h *Handler) noteByID(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id := strings.TrimPrefix(r.URL.Path, "/api/notes/")
	if id == "" {
		h.notes(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		n, err := h.store.NoteForUser(r.Context(), id, userID)
		if err != nil {
			jsonErr(w, http.StatusNotFound, "note not found")
			return
		}
		jsonResp(w, http.StatusOK, n.Payload())

	case http.MethodPut:
		var mut store.Mutation
		if err := json.NewDecoder(r.Body).Decode(&mut); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		n, err := h.store.UpdateNote(r.Context(), id, userID, mut)
		if errors.Is(err, store.ErrNotFound) {
			jsonErr(w, http.StatusNotFound, "note not found")
			return
		}
		if err != nil {
			slog.Error("api: update note", "note_id", id, "err", err)
			jsonErr(w, http.StatusInternalServerError, "internal error")
			return
		}
		jsonResp(w, http.StatusOK, n.Payload())

	case http.MethodDelete:
		err := h.store.DeleteNote(r.Context(), id, userID)
		if errors.Is(err, store.ErrNotFound) {
			jsonErr(w, http.StatusNotFound, "note not found")
			return
		}
		if err != nil {
			slog.Error("api: delete note", "note_id", id, "err", err)
			jsonErr(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// processText handles POST /api/ai/process — streams the polished text back
// as Server-Sent Events. The response ends with the `data: [DONE]` sentinel.
func (h *Handler) processText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req aiProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		jsonErr(w, http.StatusBadRequest, "text is required")
		return
	}

	sink, err := relay.NewSSESink(w)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	start := time.Now()
	slog.Info("ai: processing text", "note_id", req.NoteID, "chars", len(req.Text))
	// Run blocks until the terminal frame is out, or until the client goes
	// away (the request context cancels the session).
	h.relay.Run(r.Context(), req.Text, sink)
	slog.Info("ai: session finished", "note_id", req.NoteID, "took", time.Since(start))
}

// upload handles POST /api/upload — stores one multipart file under a random
// name and returns its public URL.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		jsonErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	name := hex.EncodeToString(buf[:]) + filepath.Ext(header.Filename)

	dst, err := os.Create(filepath.Join(h.uploadDir, name))
	if err != nil {
		slog.Error("api: create upload file", "err", err)
		jsonErr(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		slog.Error("api: write upload file", "err", err)
		jsonErr(w, http.StatusInternalServerError, "failed to save file")
		return
	}

	jsonResp(w, http.StatusOK, uploadResponse{URL: "/static/uploads/" + name})
}

// --- helpers -------------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}
