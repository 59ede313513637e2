package scanning

import "context"

// ReceiptData contains the bill fields suggested from a receipt image.
// Empty fields mean the scanner could not find a value.
type ReceiptData struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Date   string `json:"date"` // YYYY-MM-DD
	Amount int    `json:"amount"`
	VAT    string `json:"vat"`
}

// Scanner reads a receipt image and suggests bill fields
type Scanner interface {
	// ScanReceipt analyzes a JPEG or PNG receipt
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error)
	// Close releases the scanner's resources
	Close() error
}
