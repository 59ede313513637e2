package bill

import (
	"fmt"
	"time"
)

// frenchMonths holds the three-letter French month abbreviations
var frenchMonths = [...]string{
	"Jan", "Fév", "Mar", "Avr", "Mai", "Jui",
	"Jui", "Aoû", "Sep", "Oct", "Nov", "Déc",
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
}

// FormatError reports a date that could not be parsed
type FormatError struct {
	Raw string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("formatting date %q: %v", e.Raw, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// FormatDate renders a raw stored date as "4 Avr. 04".
// Only raw stored dates are accepted; a formatted date is rejected.
func FormatDate(raw string) (string, error) {
	var (
		t   time.Time
		err error
	)
	for _, layout := range dateLayouts {
		t, err = time.Parse(layout, raw)
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", &FormatError{Raw: raw, Err: err}
	}
	return fmt.Sprintf("%d %s. %02d", t.Day(), frenchMonths[t.Month()-1], t.Year()%100), nil
}

// FormatStatus maps a lifecycle tag to its display label.
// Unknown values are returned unchanged so they stay visible.
func FormatStatus(raw string) string {
	switch Status(raw) {
	case StatusPending:
		return "En attente"
	case StatusAccepted:
		return "Accepté"
	case StatusRefused:
		return "Refusé"
	default:
		return raw
	}
}
