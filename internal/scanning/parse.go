package scanning

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/billed/internal/bill"
)

// rawReceipt is the JSON document the models are asked to produce
type rawReceipt struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Date   string   `json:"date"`
	Amount *float64 `json:"amount"`
	VAT    *float64 `json:"vat"`
}

var modelDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
}

// parseReceiptJSON extracts the JSON object from a model reply
func parseReceiptJSON(text string) (*ReceiptData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	var raw rawReceipt
	if err := json.Unmarshal([]byte(text[startIdx:endIdx+1]), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data := &ReceiptData{
		Name: strings.TrimSpace(raw.Name),
		Type: matchType(raw.Type),
		Date: normalizeDate(raw.Date),
	}
	if raw.Amount != nil && *raw.Amount >= 0 {
		data.Amount = int(math.Round(*raw.Amount))
	}
	if raw.VAT != nil && *raw.VAT >= 0 {
		data.VAT = strconv.Itoa(int(math.Round(*raw.VAT)))
	}
	return data, nil
}

// normalizeDate converts the date to YYYY-MM-DD, or "" when it cannot be read
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range modelDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}

// matchType returns the known category equal to s, ignoring case
func matchType(s string) string {
	s = strings.TrimSpace(s)
	for _, t := range bill.Types {
		if strings.EqualFold(string(t), s) {
			return string(t)
		}
	}
	return ""
}
