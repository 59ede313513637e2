package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/billing"
	"github.com/zombor/billed/internal/scanning"
	"github.com/zombor/billed/internal/session"
	"github.com/zombor/billed/internal/store"
	"github.com/zombor/billed/internal/web"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// config holds the flags shared by every subcommand
type config struct {
	backend     *string
	apiURL      *string
	apiTimeout  *time.Duration
	dbPath      *string
	storagePath *string
	sessionPath *string
	port        *int
	publicURL   *string
	logLevel    *string
	logFormat   *string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is fine
	_ = godotenv.Load()

	rootFlags := ff.NewFlagSet("billed")
	cfg := config{
		backend:     rootFlags.StringLong("backend", "local", "Bills backend: 'api', 'local' or 'none'"),
		apiURL:      rootFlags.StringLong("api-url", "http://localhost:5678", "Billed REST API base URL"),
		apiTimeout:  rootFlags.DurationLong("api-timeout", 30*time.Second, "Billed REST API request timeout"),
		dbPath:      rootFlags.StringLong("db", "billed.db", "Local backend database file path"),
		storagePath: rootFlags.StringLong("storage", "./receipts", "Local backend receipt directory path"),
		sessionPath: rootFlags.StringLong("session", defaultSessionPath(), "Session file path"),
		port:        rootFlags.IntLong("port", 8080, "HTTP server port"),
		publicURL:   rootFlags.StringLong("public-url", "", "Public base URL of the server for receipt links (default: relative links)"),
		logLevel:    rootFlags.StringLong("log-level", "info", "Log level: debug, info, warn or error"),
		logFormat:   rootFlags.StringLong("log-format", "text", "Log format: 'text' or 'json'"),
	}
	_ = rootFlags.BoolLong("version", "Show version information")

	root := &ff.Command{
		Name:      "billed",
		Usage:     "billed [FLAGS] <SUBCOMMAND>",
		ShortHelp: "Employee expense reports",
		Flags:     rootFlags,
		Subcommands: []*ff.Command{
			serveCommand(cfg, rootFlags),
			loginCommand(cfg, rootFlags),
			logoutCommand(cfg, rootFlags),
			listCommand(cfg, rootFlags),
		},
		Exec: func(ctx context.Context, args []string) error {
			return ff.ErrHelp
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.Parse(os.Args[1:], ff.WithEnvVarPrefix("BILLED")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.GetSelected()))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := setupLogging(*cfg.logLevel, *cfg.logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := root.Run(ctx); err != nil {
		if errors.Is(err, ff.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.GetSelected()))
			os.Exit(0)
		}
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "billed-session.json"
	}
	return filepath.Join(dir, "billed", "session.json")
}

// setupLogging installs the default slog handler
func setupLogging(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// backend is an opened bills backend. store is nil when none is configured.
type backend struct {
	store store.Store
	files web.ReceiptFiles
	close func() error
}

// openBackend initializes the backend selected by --backend
func openBackend(cfg config, sess session.Reader) (*backend, error) {
	switch *cfg.backend {
	case "api":
		slog.Info("Using REST backend", "url", *cfg.apiURL)
		api, err := store.NewAPI(*cfg.apiURL, sess, *cfg.apiTimeout)
		if err != nil {
			return nil, err
		}
		return &backend{store: api, close: func() error { return nil }}, nil
	case "local":
		slog.Info("Initializing database...", "path", *cfg.dbPath)
		db, err := store.NewBoltDB(*cfg.dbPath)
		if err != nil {
			return nil, fmt.Errorf("initializing database: %w", err)
		}

		slog.Info("Initializing storage...", "path", *cfg.storagePath)
		files, err := store.NewLocalStorage(*cfg.storagePath)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing storage: %w", err)
		}

		local := store.NewLocal(db, files, receiptBaseURL(*cfg.publicURL))
		return &backend{store: local, files: local, close: db.Close}, nil
	case "none":
		slog.Warn("No backend configured")
		return &backend{close: func() error { return nil }}, nil
	default:
		return nil, fmt.Errorf("invalid backend %q, valid: api, local or none", *cfg.backend)
	}
}

// receiptBaseURL is where the server exposes receipts. An empty publicURL gives a relative path.
func receiptBaseURL(publicURL string) string {
	return strings.TrimSuffix(publicURL, "/") + "/files"
}

func serveCommand(cfg config, parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("serve").SetParent(parent)
	var (
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		scannerType = fs.StringLong("scanner", "none", "Scanner type: 'none', 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)")
	)

	return &ff.Command{
		Name:      "serve",
		Usage:     "billed serve [FLAGS]",
		ShortHelp: "Serve the bills pages",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			sess := session.NewFile(*cfg.sessionPath)
			if user := sess.User(); user.Email == "" {
				slog.Warn("No user logged in, bills will be sent without an email", "session", *cfg.sessionPath)
			}

			be, err := openBackend(cfg, sess)
			if err != nil {
				return err
			}
			defer be.close()

			scanner, err := openScanner(ctx, *scannerType, *geminiKey, *geminiModel, *ollamaURL, *ollamaModel)
			if err != nil {
				return err
			}
			if scanner != nil {
				defer scanner.Close()
			}

			deps := web.Deps{Store: be.store, Session: sess, Scanner: scanner, Files: be.files}

			server := web.NewServer(deps, web.BasicAuth{Username: *authUser, Password: *authPass})

			// Start server in goroutine
			addr := fmt.Sprintf(":%d", *cfg.port)
			errc := make(chan error, 1)
			go func() {
				errc <- server.Start(addr)
			}()

			slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
			if *authUser != "" || *authPass != "" {
				slog.Info("Basic auth enabled", "user", *authUser)
			}

			select {
			case err := <-errc:
				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
				slog.Info("Shutting down...")
				return nil
			}
		},
	}
}

// openScanner initializes the receipt scanner. It returns nil for "none".
func openScanner(ctx context.Context, scannerType, geminiKey, geminiModel, ollamaURL, ollamaModel string) (scanning.Scanner, error) {
	switch scannerType {
	case "none", "":
		return nil, nil
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini api key is required, set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", geminiModel)
		scanner, err := scanning.NewGemini(ctx, apiKey, geminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		return scanner, nil
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", ollamaURL, "model", ollamaModel)
		scanner, err := scanning.NewOllama(ollamaURL, ollamaModel)
		if err != nil {
			return nil, fmt.Errorf("initializing ollama: %w", err)
		}
		return scanner, nil
	default:
		return nil, fmt.Errorf("invalid scanner type %q, valid: none, gemini or ollama", scannerType)
	}
}

func loginCommand(cfg config, parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("login").SetParent(parent)
	var (
		email    = fs.StringLong("email", "", "User email")
		userType = fs.StringLong("type", string(bill.UserEmployee), "User type: 'Employee' or 'Admin'")
		token    = fs.StringLong("token", "", "Bearer token for the REST backend (optional)")
	)

	return &ff.Command{
		Name:      "login",
		Usage:     "billed login --email EMAIL [FLAGS]",
		ShortHelp: "Store the current user in the session file",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if *email == "" {
				return errors.New("--email is required")
			}
			ut := bill.UserType(*userType)
			if ut != bill.UserEmployee && ut != bill.UserAdmin {
				return fmt.Errorf("invalid user type %q", *userType)
			}

			sess := session.NewFile(*cfg.sessionPath)
			if err := sess.Save(bill.User{Type: ut, Email: *email}, *token); err != nil {
				return err
			}
			slog.Info("Logged in", "email", *email, "type", ut)
			return nil
		},
	}
}

func logoutCommand(cfg config, parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("logout").SetParent(parent)
	return &ff.Command{
		Name:      "logout",
		Usage:     "billed logout",
		ShortHelp: "Clear the session file",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := session.NewFile(*cfg.sessionPath).Clear(); err != nil {
				return err
			}
			slog.Info("Logged out")
			return nil
		},
	}
}

func listCommand(cfg config, parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("list").SetParent(parent)
	return &ff.Command{
		Name:      "list",
		Usage:     "billed list",
		ShortHelp: "Print the bills, newest first",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			sess := session.NewFile(*cfg.sessionPath)
			be, err := openBackend(cfg, sess)
			if err != nil {
				return err
			}
			defer be.close()

			flow := billing.NewBillsFlow(be.store, billing.NavigatorFunc(func(string) {}))
			bills, configured, err := flow.GetBills(ctx)
			if err != nil {
				return err
			}
			if !configured {
				fmt.Println("No backend configured.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tTYPE\tNAME\tAMOUNT\tSTATUS\tRECEIPT")
			for _, b := range bills {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d €\t%s\t%s\n", b.DisplayDate, b.Type, b.Name, b.Amount, b.DisplayStatus, b.FileName)
			}
			return tw.Flush()
		},
	}
}
