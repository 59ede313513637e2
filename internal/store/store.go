package store

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zombor/billed/internal/bill"
)

// Store is the remote backend holding bills and receipt files
type Store interface {
	Bills() Bills
}

// Bills is the bills resource of a Store
type Bills interface {
	// List returns every bill visible to the current user
	List(ctx context.Context) ([]bill.Bill, error)

	// Create uploads a receipt file and reserves a bill record for it
	Create(ctx context.Context, req CreateRequest) (*Upload, error)

	// Update creates or replaces the bill stored under req.Selector
	Update(ctx context.Context, req UpdateRequest) (*bill.Bill, error)
}

// File is a receipt file selected by the user
type File struct {
	Name        string
	Data        []byte
	ContentType string
}

// CreateRequest is the payload of Bills.Create
type CreateRequest struct {
	File  File
	Email string
}

// Upload is the result of a successful Bills.Create
type Upload struct {
	FileURL string `json:"fileUrl"`
	Key     string `json:"key"`
}

// UpdateRequest is the payload of Bills.Update
type UpdateRequest struct {
	ID       string
	Data     bill.Bill
	Selector string
}

// Error is a failure reported by the backend.
// Error() returns Message verbatim so it can be shown to the user.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds an Error, defaulting the message to "Erreur <status>"
func NewError(status int, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("Erreur %d", status)
	}
	return &Error{Status: status, Message: message}
}

// errInternal is returned when the local backend fails
func errInternal() *Error {
	return NewError(http.StatusInternalServerError, "")
}
