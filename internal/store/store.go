package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Sentinel errors returned by store operations. Callers map these to HTTP
// status codes; the hub treats any error as "log and drop".
var (
	ErrNotFound = errors.New("store: not found")
	ErrExists   = errors.New("store: already exists")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);

CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user_id);
`

// User is one registered account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Note is one document owned by a user.
type Note struct {
	ID        string
	Title     string
	Content   string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotePayload is the canonical JSON representation of a note, shared by the
// REST API and the WebSocket broadcast path. Timestamps are UTC RFC 3339.
type NotePayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// Payload maps the note to its canonical wire representation.
func (n *Note) Payload() NotePayload {
	return NotePayload{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: n.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Mutation is a partial update to a note. Nil fields are left unchanged.
type Mutation struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// Store is the SQLite-backed user and note store. Safe for concurrent use;
// SQLite writes are serialized through a single connection.
type Store struct {
	db  *sql.DB
	now func() time.Time // injectable for deterministic tests
}

// Open opens (creating if necessary) the database at path and runs the schema
// migration. Parent directories are created.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- users -------------------------------------------------------------------

// CreateUser inserts a new user. Returns ErrExists if the username is taken.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	if _, err := s.UserByUsername(ctx, username); err == nil {
		return nil, ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, username, password_hash, created_at) VALUES(?,?,?,?)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("store: insert user: %w", err)
	}
	return u, nil
}

// UserByUsername returns the user with the given username, or ErrNotFound.
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// UserByID returns the user with the given id, or ErrNotFound.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var created string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &u, nil
}

// --- notes -------------------------------------------------------------------

const noteColumns = `id, title, content, user_id, created_at, updated_at`

// CreateNote inserts a new note owned by userID.
func (s *Store) CreateNote(ctx context.Context, userID, title, content string) (*Note, error) {
	now := s.now().UTC()
	n := &Note{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes(`+noteColumns+`) VALUES(?,?,?,?,?,?)`,
		n.ID, n.Title, n.Content, n.UserID,
		n.CreatedAt.Format(time.RFC3339Nano), n.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("store: insert note: %w", err)
	}
	return n, nil
}

// NotesByUser returns all notes owned by userID, most recently updated first.
func (s *Store) NotesByUser(ctx context.Context, userID string) ([]*Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()

	out := make([]*Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// NoteForUser returns the note with the given id if it is owned by userID,
// otherwise ErrNotFound. Used by the REST CRUD surface.
func (s *Store) NoteForUser(ctx context.Context, id, userID string) (*Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ? AND user_id = ?`, id, userID)
	return scanNoteRow(row)
}

// Get returns the note with the given id regardless of owner, or ErrNotFound.
// Used by the WebSocket path, which trusts the authenticated session.
func (s *Store) Get(ctx context.Context, id string) (*Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	return scanNoteRow(row)
}

// UpdateNote applies a partial mutation to a note owned by userID and returns
// the post-mutation note.
func (s *Store) UpdateNote(ctx context.Context, id, userID string, mut Mutation) (*Note, error) {
	if _, err := s.NoteForUser(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.ApplyMutation(ctx, id, mut)
}

// ApplyMutation applies a partial mutation to a note by id and returns the
// canonical post-mutation note. Returns ErrNotFound if the note is unknown.
func (s *Store) ApplyMutation(ctx context.Context, id string, mut Mutation) (*Note, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if mut.Title != nil {
		n.Title = *mut.Title
	}
	if mut.Content != nil {
		n.Content = *mut.Content
	}
	n.UpdatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE notes SET title = ?, content = ?, updated_at = ? WHERE id = ?`,
		n.Title, n.Content, n.UpdatedAt.Format(time.RFC3339Nano), n.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: update note: %w", err)
	}
	return n, nil
}

// DeleteNote removes a note owned by userID. Returns ErrNotFound if absent.
func (s *Store) DeleteNote(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("store: delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountNotes returns the total number of notes. Used by the metrics endpoint.
func (s *Store) CountNotes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count notes: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNoteRow(row *sql.Row) (*Note, error) {
	n, err := scanNote(row)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

func scanNote(sc scanner) (*Note, error) {
	var n Note
	var created, updated string
	if err := sc.Scan(&n.ID, &n.Title, &n.Content, &n.UserID, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan note: %w", err)
	}
	n.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	n.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &n, nil
}
