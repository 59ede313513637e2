package web

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/billing"
	"github.com/zombor/billed/internal/store"
)

// maxReceiptSize bounds receipt uploads
const maxReceiptSize = int64(10 << 20)

type billRow struct {
	bill.DisplayBill
	Receipt    billing.Receipt
	HasReceipt bool
}

type billsPage struct {
	State string
	Error string
	Rows  []billRow
}

type newBillPage struct {
	View        billing.NewBillView
	Types       []bill.Type
	SubmitError string
}

// follow redirects to the path nav recorded, or to fallback
func follow(w http.ResponseWriter, r *http.Request, nav *redirector, fallback string) {
	path, ok := nav.take()
	if !ok {
		path = fallback
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// handleIndex sends the user to the bills list
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, billing.PathBills, http.StatusSeeOther)
}

// handleBills renders the bills list, the loading view or the error view
func (s *Server) handleBills(w http.ResponseWriter, r *http.Request) {
	bills := s.billsFlow(&redirector{})
	page := bills.Load(r.Context())

	switch page.State {
	case billing.PageLoading:
		render(w, "bills.html", http.StatusOK, billsPage{State: "loading"})
	case billing.PageError:
		render(w, "bills.html", http.StatusBadGateway, billsPage{State: "error", Error: page.Error})
	default:
		rows := make([]billRow, 0, len(page.Bills))
		for _, b := range page.Bills {
			receipt, ok := bills.Receipt(b.Bill)
			rows = append(rows, billRow{DisplayBill: b, Receipt: receipt, HasReceipt: ok})
		}
		render(w, "bills.html", http.StatusOK, billsPage{State: "ready", Rows: rows})
	}
}

// handleNewBill is the "new bill" button of the bills list
func (s *Server) handleNewBill(w http.ResponseWriter, r *http.Request) {
	nav := &redirector{}
	s.billsFlow(nav).NewBill()
	follow(w, r, nav, billing.PathNewBill)
}

// handleNewBillForm renders the active new bill form
func (s *Server) handleNewBillForm(w http.ResponseWriter, r *http.Request) {
	flow, _ := s.currentNewBill()
	render(w, "newbill.html", http.StatusOK, newBillPage{View: flow.View(), Types: bill.Types})
}

// handleChangeFile receives the receipt selected in the form
func (s *Server) handleChangeFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptSize)
	if err := r.ParseMultipartForm(maxReceiptSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		http.Error(w, "Le fichier est trop volumineux ou illisible.", http.StatusBadRequest)
		return
	}

	var file store.File
	f, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		slog.Error("Error getting file from form", "error", err)
		http.Error(w, "Fichier illisible.", http.StatusBadRequest)
		return
	default:
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			http.Error(w, "Fichier illisible.", http.StatusInternalServerError)
			return
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = bill.ContentType(header.Filename)
		}
		file = store.File{
			Name:        header.Filename,
			Data:        data,
			ContentType: contentType,
		}
	}

	flow, _ := s.currentNewBill()
	status := flow.ChangeFile(r.Context(), file)
	slog.Debug("Receipt selected", "filename", file.Name, "status", status)
	http.Redirect(w, r, billing.PathNewBill, http.StatusSeeOther)
}

// handleSubmit sends the new bill
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Formulaire invalide.", http.StatusBadRequest)
		return
	}

	form := billing.Form{
		Type:       r.PostFormValue("type"),
		Name:       r.PostFormValue("name"),
		Date:       r.PostFormValue("date"),
		Amount:     r.PostFormValue("amount"),
		VAT:        r.PostFormValue("vat"),
		Pct:        r.PostFormValue("pct"),
		Commentary: r.PostFormValue("commentary"),
	}

	flow, nav := s.currentNewBill()
	err := flow.Submit(r.Context(), form)
	switch {
	case err == nil:
		follow(w, r, nav, billing.PathBills)
	case errors.Is(err, billing.ErrSubmitted):
		http.Redirect(w, r, billing.PathBills, http.StatusSeeOther)
	default:
		slog.Error("Error submitting bill", "error", err)
		render(w, "newbill.html", http.StatusBadGateway, newBillPage{
			View:        flow.View(),
			Types:       bill.Types,
			SubmitError: err.Error(),
		})
	}
}

// handleGetFile returns a stored receipt
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Files == nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	data, contentType, err := s.deps.Files.Open(r.PathValue("name"))
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
