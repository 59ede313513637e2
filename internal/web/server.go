package web

import (
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/zombor/billed/internal/billing"
	"github.com/zombor/billed/internal/scanning"
	"github.com/zombor/billed/internal/session"
	"github.com/zombor/billed/internal/store"
)

// ReceiptFiles serves stored receipt files
type ReceiptFiles interface {
	Open(name string) ([]byte, string, error)
}

// Deps are the collaborators of the web server. Store, Scanner and Files may be nil.
type Deps struct {
	Store   store.Store
	Session session.Reader
	Scanner scanning.Scanner
	Files   ReceiptFiles
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Server renders the bills pages
type Server struct {
	deps      Deps
	basicAuth BasicAuth
	mux       *http.ServeMux

	mu         sync.Mutex
	newBill    *billing.NewBillFlow
	newBillNav *redirector
}

// redirector records the last path one flow navigated to
type redirector struct {
	mu   sync.Mutex
	path string
}

func (r *redirector) Navigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = path
}

// take returns and clears the recorded path
func (r *redirector) take() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path := r.path
	r.path = ""
	return path, path != ""
}

// NewServer creates a new Server with default mux
func NewServer(deps Deps, basicAuth BasicAuth) *Server {
	return NewServerWithMux(deps, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(deps Deps, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		deps:      deps,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// billsFlow creates a bills flow whose navigation is recorded in nav
func (s *Server) billsFlow(nav billing.Navigator) *billing.BillsFlow {
	return billing.NewBillsFlow(s.deps.Store, nav)
}

// currentNewBill returns the active new bill flow and its navigation, starting one when needed.
// Only a successful Submit navigates, and a flow submits once.
func (s *Server) currentNewBill() (*billing.NewBillFlow, *redirector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.newBill == nil || s.newBill.State() == billing.StateSubmitted {
		s.newBillNav = &redirector{}
		s.newBill = billing.StartNewBill(s.deps.Store, s.deps.Session, s.newBillNav, s.deps.Scanner)
	}
	return s.newBill, s.newBillNav
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(credentials[0]), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(credentials[1]), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Billed"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /files/{name}", s.requireAuth(s.handleGetFile))

	s.mux.HandleFunc("POST /bills/new/file", s.requireAuth(s.handleChangeFile))
	s.mux.HandleFunc("POST /bills/new/submit", s.requireAuth(s.handleSubmit))
	s.mux.HandleFunc("GET /bills/new", s.requireAuth(s.handleNewBillForm))
	s.mux.HandleFunc("POST /bills/new", s.requireAuth(s.handleNewBill))
	s.mux.HandleFunc("GET /bills", s.requireAuth(s.handleBills))

	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.mux)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
