package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"
)

// receiptScanPrompt is the shared prompt used by all providers
const receiptScanPrompt = `You are analyzing a receipt for a French employee expense report. Read all text in the image and extract:

1. **name**: the merchant or business name followed by a short description, e.g. "SNCF - Paris Lyon".
2. **type**: the expense category, exactly one of: "Transports", "Restaurants et bars", "Hôtel et logement", "Services en ligne", "IT et électronique", "Equipement et matériel", "Fournitures de bureau".
3. **date**: the transaction date in ISO 8601 format (YYYY-MM-DD).
4. **amount**: the total amount paid including taxes, as a number (e.g. 42.75).
5. **vat**: the VAT (TVA) amount, as a number.

Return ONLY valid JSON in this exact format:
{
  "name": "Merchant - Description",
  "type": "Transports",
  "date": "YYYY-MM-DD",
  "amount": 0.00,
  "vat": 0.00
}

If you cannot find a field, use null for that field. Do not include any text before or after the JSON.`

// imageToPNG re-encodes a JPEG receipt as PNG
func imageToPNG(imageData []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// prepareImageData returns PNG bytes for the receipt.
// PNG input is returned as-is; JPEG is converted.
func prepareImageData(imageData []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	switch mimeType {
	case "image/png":
		return imageData, nil
	case "image/jpeg", "image/jpg", "":
		pngData, err := imageToPNG(imageData)
		if err != nil {
			return nil, fmt.Errorf("converting image to PNG: %w", err)
		}
		return pngData, nil
	default:
		return nil, fmt.Errorf("unsupported receipt type %q", contentType)
	}
}
