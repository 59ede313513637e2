package billing

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/store"
)

// PageState is the view the bills page should render
type PageState int

const (
	// PageLoading means no data source is configured yet
	PageLoading PageState = iota
	// PageError means retrieval failed; Page.Error carries the message
	PageError
	// PageReady means Page.Bills is the list to render
	PageReady
)

// Page is the outcome of loading the bills page
type Page struct {
	State PageState
	Bills []bill.DisplayBill
	Error string
}

// Receipt is the attachment shown in the receipt preview
type Receipt struct {
	URL  string
	Name string
}

// BillsFlow retrieves the employee's bills for display
type BillsFlow struct {
	store      store.Store
	navigator  Navigator
	formatDate func(string) (string, error)
}

// NewBillsFlow creates a BillsFlow. A nil store means no data source is configured.
func NewBillsFlow(s store.Store, nav Navigator) *BillsFlow {
	return NewBillsFlowWithFormatter(s, nav, bill.FormatDate)
}

// NewBillsFlowWithFormatter creates a BillsFlow with a custom date formatter for testing
func NewBillsFlowWithFormatter(s store.Store, nav Navigator, formatDate func(string) (string, error)) *BillsFlow {
	return &BillsFlow{
		store:      s,
		navigator:  nav,
		formatDate: formatDate,
	}
}

// GetBills lists the bills newest first with display dates and statuses.
// configured is false when no store is set; store errors are returned unchanged.
func (f *BillsFlow) GetBills(ctx context.Context) (bills []bill.DisplayBill, configured bool, err error) {
	if f.store == nil {
		return nil, false, nil
	}

	raw, err := f.store.Bills().List(ctx)
	if err != nil {
		return nil, true, err
	}

	bills = make([]bill.DisplayBill, 0, len(raw))
	for _, b := range raw {
		date, err := f.formatDate(b.Date)
		if err != nil {
			slog.Debug("Keeping unformatted date", "bill", b.ID, "date", b.Date, "error", err)
			date = b.Date
		}
		bills = append(bills, bill.DisplayBill{
			Bill:          b,
			RawDate:       b.Date,
			DisplayDate:   date,
			DisplayStatus: bill.FormatStatus(string(b.Status)),
		})
	}

	slices.SortStableFunc(bills, func(a, b bill.DisplayBill) int {
		return strings.Compare(b.RawDate, a.RawDate)
	})
	return bills, true, nil
}

// Load maps GetBills to the view the bills page renders
func (f *BillsFlow) Load(ctx context.Context) Page {
	bills, configured, err := f.GetBills(ctx)
	switch {
	case !configured:
		return Page{State: PageLoading}
	case err != nil:
		slog.Error("Failed to load bills", "error", err)
		return Page{State: PageError, Error: err.Error()}
	default:
		return Page{State: PageReady, Bills: bills}
	}
}

// NewBill navigates to the new bill form
func (f *BillsFlow) NewBill() {
	f.navigator.Navigate(PathNewBill)
}

// Receipt returns the attachment of b, if it has one
func (f *BillsFlow) Receipt(b bill.Bill) (Receipt, bool) {
	if !b.HasFile() {
		return Receipt{}, false
	}
	return Receipt{URL: b.FileURL, Name: b.FileName}, true
}
