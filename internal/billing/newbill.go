package billing

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/scanning"
	"github.com/zombor/billed/internal/session"
	"github.com/zombor/billed/internal/store"
)

// defaultPct is the VAT percentage used when the form leaves it empty
const defaultPct = 20

var (
	// ErrNoStore is returned by Submit when no data source is configured
	ErrNoStore = errors.New("no store configured")
	// ErrSubmitting is returned by Submit while a submission is in flight
	ErrSubmitting = errors.New("bill submission in progress")
	// ErrSubmitted is returned by Submit once the bill has been sent
	ErrSubmitted = errors.New("bill already submitted")
	// ErrIncompleteUpload is reported when the store accepts a receipt without returning its URL
	ErrIncompleteUpload = errors.New("upload returned no file url")
)

// State is the lifecycle state of a NewBillFlow
type State int

const (
	StateEditing State = iota
	StateUploading
	StateSubmitting
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateEditing:
		return "editing"
	case StateUploading:
		return "uploading"
	case StateSubmitting:
		return "submitting"
	case StateSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// FileStatus is the outcome of ChangeFile
type FileStatus int

const (
	// FileUploaded means the receipt was stored and will be attached on submit
	FileUploaded FileStatus = iota
	// FileInvalid means the extension was rejected; nothing was uploaded
	FileInvalid
	// FileUploadFailed means the store refused the upload; the user may pick the file again
	FileUploadFailed
	// FileBusy means another upload is in flight or the bill was already submitted
	FileBusy
)

// Form holds the raw values of the new bill form fields
type Form struct {
	Type       string
	Name       string
	Date       string
	Amount     string
	VAT        string
	Pct        string
	Commentary string
}

// PendingUpload is the receipt attached to the bill being edited
type PendingUpload struct {
	FileURL  string
	FileName string
	Key      string
}

// NewBillView is a snapshot of the flow for rendering the form
type NewBillView struct {
	State       State
	Form        Form
	FileInput   string
	FileError   bool
	Upload      PendingUpload
	UploadError string
}

// NewBillFlow owns one new bill form: receipt upload then submission
type NewBillFlow struct {
	store     store.Store
	session   session.Reader
	navigator Navigator
	scanner   scanning.Scanner
	uploads   *semaphore.Weighted

	mu         sync.Mutex
	state      State
	uploading  bool
	form       Form
	fileInput  string
	fileError  bool
	upload     PendingUpload
	uploadErr  error
	suggestion *scanning.ReceiptData
}

// StartNewBill creates a NewBillFlow in the editing state.
// store and scanner may be nil.
func StartNewBill(s store.Store, sess session.Reader, nav Navigator, scanner scanning.Scanner) *NewBillFlow {
	return &NewBillFlow{
		store:     s,
		session:   sess,
		navigator: nav,
		scanner:   scanner,
		uploads:   semaphore.NewWeighted(1),
		state:     StateEditing,
	}
}

// ChangeFile handles a new file selection: validate, then upload it.
// Only one upload runs at a time.
func (f *NewBillFlow) ChangeFile(ctx context.Context, file store.File) FileStatus {
	f.mu.Lock()
	if f.state == StateSubmitted || f.state == StateSubmitting {
		f.mu.Unlock()
		return FileBusy
	}
	if !bill.ValidateFile(file.Name) {
		f.fileInput = ""
		f.fileError = true
		f.mu.Unlock()
		return FileInvalid
	}
	f.mu.Unlock()

	if !f.uploads.TryAcquire(1) {
		return FileBusy
	}
	defer f.uploads.Release(1)

	if file.ContentType == "" {
		file.ContentType = bill.ContentType(file.Name)
	}

	f.mu.Lock()
	if f.state == StateSubmitted || f.state == StateSubmitting {
		f.mu.Unlock()
		return FileBusy
	}
	f.fileInput = file.Name
	f.fileError = false
	f.state = StateUploading
	f.uploading = true
	email := f.email()
	f.mu.Unlock()

	upload, err := f.create(ctx, file, email)
	if err == nil && (upload == nil || upload.FileURL == "") {
		err = ErrIncompleteUpload
	}

	f.mu.Lock()
	f.uploading = false
	if f.state == StateUploading {
		f.state = StateEditing
	}
	if err != nil {
		slog.Error("Failed to upload receipt", "filename", file.Name, "error", err)
		f.upload = PendingUpload{}
		f.uploadErr = err
		f.fileInput = ""
		f.mu.Unlock()
		return FileUploadFailed
	}
	f.upload = PendingUpload{FileURL: upload.FileURL, FileName: file.Name, Key: upload.Key}
	f.uploadErr = nil
	f.suggestion = nil
	f.mu.Unlock()

	f.scan(ctx, file)
	return FileUploaded
}

func (f *NewBillFlow) create(ctx context.Context, file store.File, email string) (*store.Upload, error) {
	if f.store == nil {
		return nil, ErrNoStore
	}
	return f.store.Bills().Create(ctx, store.CreateRequest{File: file, Email: email})
}

// scan stores field suggestions read from the receipt. Failures are only logged.
func (f *NewBillFlow) scan(ctx context.Context, file store.File) {
	if f.scanner == nil {
		return
	}
	data, err := f.scanner.ScanReceipt(ctx, file.Data, file.ContentType)
	if err != nil {
		slog.Warn("Failed to scan receipt", "filename", file.Name, "file_size", len(file.Data), "error", err)
		return
	}

	f.mu.Lock()
	f.suggestion = data
	f.mu.Unlock()
}

// Submit sends the bill built from form and the last completed upload.
// On success the flow is done and navigates to the bills list; on failure the form is kept.
func (f *NewBillFlow) Submit(ctx context.Context, form Form) error {
	f.mu.Lock()
	switch f.state {
	case StateSubmitted:
		f.mu.Unlock()
		return ErrSubmitted
	case StateSubmitting:
		f.mu.Unlock()
		return ErrSubmitting
	}
	f.form = form
	// Nothing is sent without a store, so there is nothing to navigate to either
	if f.store == nil {
		f.mu.Unlock()
		return ErrNoStore
	}
	f.state = StateSubmitting
	payload := f.billFrom(form)
	key := f.upload.Key
	f.mu.Unlock()

	_, err := f.store.Bills().Update(ctx, store.UpdateRequest{ID: key, Data: payload, Selector: key})

	f.mu.Lock()
	if err != nil {
		f.state = StateEditing
		if f.uploading {
			f.state = StateUploading
		}
		f.mu.Unlock()
		return err
	}
	f.state = StateSubmitted
	f.mu.Unlock()

	slog.Info("Bill submitted", "id", key, "type", payload.Type, "amount", payload.Amount)
	f.navigator.Navigate(PathBills)
	return nil
}

// billFrom builds the bill payload; callers hold f.mu
func (f *NewBillFlow) billFrom(form Form) bill.Bill {
	amount, err := strconv.Atoi(strings.TrimSpace(form.Amount))
	if err != nil {
		amount = 0
	}
	pct, err := strconv.Atoi(strings.TrimSpace(form.Pct))
	if err != nil || pct == 0 {
		pct = defaultPct
	}

	return bill.Bill{
		Email:      f.email(),
		Type:       bill.Type(form.Type),
		Name:       form.Name,
		Amount:     amount,
		Date:       form.Date,
		VAT:        strings.TrimSpace(form.VAT),
		Pct:        pct,
		Commentary: form.Commentary,
		FileURL:    f.upload.FileURL,
		FileName:   f.upload.FileName,
		Status:     bill.StatusPending,
	}
}

func (f *NewBillFlow) email() string {
	if f.session == nil {
		return ""
	}
	return f.session.User().Email
}

// State returns the current lifecycle state
func (f *NewBillFlow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// View returns a snapshot for rendering. Empty form fields are prefilled from the receipt scan.
func (f *NewBillFlow) View() NewBillView {
	f.mu.Lock()
	defer f.mu.Unlock()

	view := NewBillView{
		State:     f.state,
		Form:      f.form,
		FileInput: f.fileInput,
		FileError: f.fileError,
		Upload:    f.upload,
	}
	if f.uploadErr != nil {
		view.UploadError = f.uploadErr.Error()
	}
	if s := f.suggestion; s != nil {
		view.Form = prefill(view.Form, s)
	}
	return view
}

func prefill(form Form, s *scanning.ReceiptData) Form {
	if form.Name == "" {
		form.Name = s.Name
	}
	if form.Type == "" {
		form.Type = s.Type
	}
	if form.Date == "" {
		form.Date = s.Date
	}
	if form.Amount == "" && s.Amount > 0 {
		form.Amount = strconv.Itoa(s.Amount)
	}
	if form.VAT == "" {
		form.VAT = s.VAT
	}
	return form
}
