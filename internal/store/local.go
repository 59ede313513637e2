package store

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/zombor/billed/internal/bill"
)

// IDGenerator generates keys for uploaded receipts
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaces      = regexp.MustCompile(`\s+`)
)

// Local is a Store kept on this machine: bill records in a DB and receipts in FileStorage
type Local struct {
	db          DB
	files       FileStorage
	fileBaseURL string
	idGenerator IDGenerator
}

// NewLocal creates a Local store. Receipt URLs are fileBaseURL joined with the stored file name.
func NewLocal(db DB, files FileStorage, fileBaseURL string) *Local {
	return NewLocalWithDeps(db, files, fileBaseURL, uuidGenerator{})
}

// NewLocalWithDeps creates a Local store with a custom ID generator for testing
func NewLocalWithDeps(db DB, files FileStorage, fileBaseURL string, idGen IDGenerator) *Local {
	return &Local{
		db:          db,
		files:       files,
		fileBaseURL: strings.TrimSuffix(fileBaseURL, "/"),
		idGenerator: idGen,
	}
}

// Bills returns the bills resource
func (l *Local) Bills() Bills {
	return l
}

// sanitizeFilename keeps phone-generated names short and free of special characters
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeChars.ReplaceAllString(base, "")
	base = spaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}

	return base + strings.ToLower(ext)
}

// List returns all stored bills
func (l *Local) List(ctx context.Context) ([]bill.Bill, error) {
	stored, err := l.db.ListBills()
	if err != nil {
		slog.Error("Failed to list bills", "error", err)
		return nil, errInternal()
	}

	bills := make([]bill.Bill, 0, len(stored))
	for _, b := range stored {
		bills = append(bills, *b)
	}
	return bills, nil
}

// Create saves the receipt and a pending bill skeleton pointing at it
func (l *Local) Create(ctx context.Context, req CreateRequest) (*Upload, error) {
	if len(req.File.Data) == 0 {
		return nil, NewError(http.StatusBadRequest, "Fichier manquant")
	}

	key := l.idGenerator.Generate()
	name := sanitizeFilename(req.File.Name)

	stored, err := l.files.Save(key+"_"+name, req.File.Data)
	if err != nil {
		slog.Error("Failed to save receipt", "filename", req.File.Name, "error", err)
		return nil, errInternal()
	}

	fileURL := l.fileBaseURL + "/" + url.PathEscape(stored)
	skeleton := &bill.Bill{
		ID:       key,
		Email:    req.Email,
		FileURL:  fileURL,
		FileName: req.File.Name,
		Status:   bill.StatusPending,
	}
	if err := l.db.SaveBill(skeleton); err != nil {
		slog.Error("Failed to save bill", "id", key, "error", err)
		if delErr := l.files.Delete(stored); delErr != nil {
			slog.Warn("Failed to delete receipt", "filename", stored, "error", delErr)
		}
		return nil, errInternal()
	}

	return &Upload{FileURL: fileURL, Key: key}, nil
}

// Update replaces the client-owned fields of the bill stored under the selector.
// The stored status is kept; new records start pending.
func (l *Local) Update(ctx context.Context, req UpdateRequest) (*bill.Bill, error) {
	selector := req.Selector
	if selector == "" {
		selector = req.ID
	}
	if selector == "" {
		return nil, NewError(http.StatusBadRequest, "Identifiant manquant")
	}

	status := bill.StatusPending
	existing, err := l.db.GetBill(selector)
	switch {
	case err == nil:
		if existing.Status != "" {
			status = existing.Status
		}
	case errors.Is(err, ErrNotFound):
	default:
		slog.Error("Failed to load bill", "id", selector, "error", err)
		return nil, errInternal()
	}

	updated := req.Data
	updated.ID = selector
	updated.Status = status
	if existing != nil {
		updated.CommentAdmin = existing.CommentAdmin
	}

	if err := l.db.SaveBill(&updated); err != nil {
		slog.Error("Failed to save bill", "id", selector, "error", err)
		return nil, errInternal()
	}
	return &updated, nil
}

// Open returns the bytes and content type of a stored receipt
func (l *Local) Open(name string) ([]byte, string, error) {
	data, err := l.files.Get(name)
	if err != nil {
		return nil, "", NewError(http.StatusNotFound, "")
	}
	return data, bill.ContentType(name), nil
}
