package imagepkg

import (
	qrcode "github.com/skip2/go-qrcode"

	apperr "github.com/youruser/avatarframe/internal/errors"
)

// GenerateQRPNG returns PNG bytes of a QR code for the given text.
func GenerateQRPNG(text string, size int) ([]byte, error) {
	if text == "" {
		return nil, apperr.New(apperr.ErrCodeInvalidInput, "qr: empty text")
	}
	pngBytes, err := qrcode.Encode(text, qrcode.Medium, size)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeInternal, err, "qr: encode")
	}
	return pngBytes, nil
}
