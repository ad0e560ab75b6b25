package broker

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"
)

// FileTokenSource reads the access token written by the external login
// tool. The file is re-read at most once per refresh interval so the
// login-check tick picks up a new token without restarting the bot.
type FileTokenSource struct {
	path    string
	refresh time.Duration

	mu       sync.Mutex
	token    string
	loadedAt time.Time
}

// NewFileTokenSource creates a token source backed by a JSON file of the
// form {"access_token": "..."}.
func NewFileTokenSource(path string, refresh time.Duration) *FileTokenSource {
	if refresh <= 0 {
		refresh = 30 * time.Second
	}
	return &FileTokenSource{path: path, refresh: refresh}
}

// AccessToken returns the current token, or false when no valid session
// exists yet.
func (s *FileTokenSource) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Since(s.loadedAt) < s.refresh {
		return s.token, true
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", false
	}
	token := strings.TrimSpace(payload.AccessToken)
	if token == "" {
		return "", false
	}

	s.token = token
	s.loadedAt = time.Now()
	return token, true
}

// StaticTokenSource returns a fixed token, for tests and paper runs.
type StaticTokenSource string

func (s StaticTokenSource) AccessToken() (string, bool) {
	return string(s), s != ""
}
