package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zombor/billed/internal/bill"
)

// Reader gives read-only access to the logged-in user
type Reader interface {
	// User returns the current user; a missing session yields the zero User
	User() bill.User

	// Token returns the bearer token for the backend, or ""
	Token() string
}

// record is the persisted form of a session
type record struct {
	Type  bill.UserType `json:"type"`
	Email string        `json:"email"`
	JWT   string        `json:"jwt,omitempty"`
}

// File stores the session as a JSON file
type File struct {
	path string
}

// NewFile creates a File session stored at path
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) load() record {
	var rec record
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to read session", "path", f.path, "error", err)
		}
		return rec
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("Failed to decode session", "path", f.path, "error", err)
		return record{}
	}
	return rec
}

// User returns the user stored in the session file
func (f *File) User() bill.User {
	rec := f.load()
	return bill.User{Type: rec.Type, Email: rec.Email}
}

// Token returns the bearer token stored in the session file
func (f *File) Token() string {
	return f.load().JWT
}

// Save writes the user and token to the session file
func (f *File) Save(user bill.User, token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	data, err := json.Marshal(record{Type: user.Type, Email: user.Email, JWT: token})
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// Clear removes the session file
func (f *File) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

// Static is a fixed in-memory session
type Static struct {
	Current bill.User
	JWT     string
}

// User returns the fixed user
func (s Static) User() bill.User {
	return s.Current
}

// Token returns the fixed token
func (s Static) Token() string {
	return s.JWT
}
