// Package qr renders scan-entry payloads as images. The core only hands a
// Renderer an opaque string; image format and layout are the renderer's
// business.
package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// Renderer turns a scan-entry payload into image bytes.
type Renderer interface {
	Render(payload string) ([]byte, error)
}

// PNGRenderer renders payloads as PNG QR codes.
type PNGRenderer struct {
	size int
}

// NewPNGRenderer creates a renderer producing size x size pixel images.
// A non-positive size defaults to 256.
func NewPNGRenderer(size int) *PNGRenderer {
	if size <= 0 {
		size = 256
	}
	return &PNGRenderer{size: size}
}

// Render encodes the payload as a PNG QR code.
func (r *PNGRenderer) Render(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}

// ScanURL builds the public scan-entry URL embedded in a token's image.
func ScanURL(baseURL, tokenID string) string {
	return baseURL + "/scan/" + tokenID
}
