package imagepkg

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"

	apperr "github.com/youruser/avatarframe/internal/errors"
)

const (
	// MaxSourceBytes caps the encoded size of a downloaded, uploaded or
	// on-disk source image.
	MaxSourceBytes = 20 << 20
	// MaxSourcePixels caps the decoded area of a source image. The header is
	// checked before any pixel buffer is allocated.
	MaxSourcePixels = 50_000_000
)

// EncodePNG returns the PNG encoding of img.
func EncodePNG(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeInternal, err, "encode png")
	}
	return buf.Bytes(), nil
}

// DecodeBytes decodes an uploaded or downloaded image, applying EXIF
// orientation. Images whose header declares more than MaxSourcePixels are
// rejected without being decoded.
func DecodeBytes(b []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeDecode, err, "decode source image")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return nil, apperr.New(apperr.ErrCodeDecode, "source image %dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxSourcePixels)
	}
	img, err := imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeDecode, err, "decode source image")
	}
	return img, nil
}
