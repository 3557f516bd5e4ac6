package pix

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// RenderQR renders the payload as a PNG QR code wrapped in a base64 data
// URI for inline embedding. Callers treat a render failure as non-fatal:
// the textual payload is copyable on its own.
func RenderQR(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
