package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/session"
)

// API is a Store backed by the Billed REST backend
type API struct {
	baseURL string
	session session.Reader
	client  *http.Client
}

// NewAPI creates an API store for the backend at baseURL
func NewAPI(baseURL string, sess session.Reader, timeout time.Duration) (*API, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parsing api base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &API{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		session: sess,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Bills returns the bills resource
func (a *API) Bills() Bills {
	return &apiEntity{api: a, key: "bills"}
}

// errorBody is the error document returned by the backend
type errorBody struct {
	Message string `json:"message"`
}

// do sends the request and decodes a 2xx JSON response into out
func (a *API) do(req *http.Request, out any) error {
	if a.session != nil {
		if token := a.session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Error("Backend request failed", "method", req.Method, "url", req.URL.String(), "error", err)
		return NewError(http.StatusServiceUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewError(resp.StatusCode, fmt.Sprintf("reading response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		slog.Warn("Backend returned an error",
			"method", req.Method,
			"url", req.URL.String(),
			"status", resp.StatusCode,
			"message", eb.Message,
		)
		return NewError(resp.StatusCode, eb.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewError(resp.StatusCode, fmt.Sprintf("decoding response: %v", err))
	}
	return nil
}

// apiEntity is one REST resource of the backend
type apiEntity struct {
	api *API
	key string
}

func (e *apiEntity) url(selector string) string {
	if selector == "" {
		return e.api.baseURL + "/" + e.key
	}
	return e.api.baseURL + "/" + e.key + "/" + url.PathEscape(selector)
}

// List fetches every bill
func (e *apiEntity) List(ctx context.Context) ([]bill.Bill, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url(""), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var bills []bill.Bill
	if err := e.api.do(req, &bills); err != nil {
		return nil, err
	}
	if bills == nil {
		bills = []bill.Bill{}
	}
	return bills, nil
}

// Create uploads the receipt as multipart form data
func (e *apiEntity) Create(ctx context.Context, cr CreateRequest) (*Upload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", cr.File.Name)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(cr.File.Data); err != nil {
		return nil, fmt.Errorf("writing form file: %w", err)
	}
	if err := mw.WriteField("email", cr.Email); err != nil {
		return nil, fmt.Errorf("writing email field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url(""), &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var upload Upload
	if err := e.api.do(req, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// Update sends the bill as JSON to the record named by the selector
func (e *apiEntity) Update(ctx context.Context, ur UpdateRequest) (*bill.Bill, error) {
	data, err := json.Marshal(ur.Data)
	if err != nil {
		return nil, fmt.Errorf("marshaling bill: %w", err)
	}

	selector := ur.Selector
	if selector == "" {
		selector = ur.ID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, e.url(selector), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var updated bill.Bill
	if err := e.api.do(req, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}
