package bill

import (
	"path/filepath"
	"strings"
)

// receiptExtensions are the attachment types the backend accepts
var receiptExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
}

// ValidateFile reports whether name is an acceptable receipt file.
// Only the extension is checked.
func ValidateFile(name string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	return receiptExtensions[strings.ToLower(ext)]
}

// ContentType guesses the MIME type of a receipt from its extension
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
