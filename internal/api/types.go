package api

// credentialsRequest is the body of POST /api/auth/register and /api/auth/login.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userResponse is the public representation of an account.
type userResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt"`
}

// tokenResponse is the body returned by a successful login.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	// ExpiresIn is the token lifetime in hours.
	ExpiresIn int `json:"expires_in"`
}

// noteRequest is the body of POST /api/notes.
type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// aiProcessRequest is the body of POST /api/ai/process.
type aiProcessRequest struct {
	Text string `json:"text"`
	// NoteID is an optional correlation id; it scopes nothing, it only shows
	// up in logs.
	NoteID string `json:"note_id"`
}

// uploadResponse is the body returned by a successful upload.
type uploadResponse struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}
