package imagepkg

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	apperr "github.com/youruser/avatarframe/internal/errors"
)

// Compose resizes src and mask to exactly size, then blends the source
// onto a copy of tmpl at offset at, using the mask as per-pixel opacity:
// white/opaque mask pixels take the source, black/transparent keep the
// template, anything between blends linearly. tmpl is never modified.
//
// The mask is stretched to size whatever its own aspect ratio. Masks with
// transparency are read through their alpha channel, opaque masks through
// their luminance.
//
// The result has the template's bounds, translated to the origin. Parts of
// the overlay falling outside the template are clipped.
func Compose(tmpl, mask, src image.Image, size, at image.Point) (*image.NRGBA, error) {
	if tmpl == nil || mask == nil || src == nil {
		return nil, apperr.New(apperr.ErrCodeResize, "compose: missing raster")
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, apperr.New(apperr.ErrCodeResize, "compose: invalid target size %v", size)
	}
	if src.Bounds().Empty() || mask.Bounds().Empty() {
		return nil, apperr.New(apperr.ErrCodeResize, "compose: empty source or mask")
	}

	overlay := imaging.Resize(src, size.X, size.Y, imaging.Lanczos)
	levels := maskLevels(mask, size)
	dst := imaging.Clone(tmpl)

	bounds := dst.Bounds()
	for y := 0; y < size.Y; y++ {
		dy := at.Y + y
		if dy < bounds.Min.Y || dy >= bounds.Max.Y {
			continue
		}
		for x := 0; x < size.X; x++ {
			dx := at.X + x
			if dx < bounds.Min.X || dx >= bounds.Max.X {
				continue
			}
			a := uint32(levels[y*size.X+x])
			if a == 0 {
				continue
			}
			si := overlay.PixOffset(x, y)
			di := dst.PixOffset(dx, dy)
			for c := 0; c < 4; c++ {
				s := uint32(overlay.Pix[si+c])
				d := uint32(dst.Pix[di+c])
				dst.Pix[di+c] = uint8((s*a + d*(255-a) + 127) / 255)
			}
		}
	}
	return dst, nil
}

// maskLevels resizes mask to size and returns one opacity byte per pixel,
// row-major.
func maskLevels(mask image.Image, size image.Point) []uint8 {
	useAlpha := !opaque(mask)
	resized := imaging.Resize(mask, size.X, size.Y, imaging.Lanczos)

	levels := make([]uint8, size.X*size.Y)
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			p := resized.Pix[resized.PixOffset(x, y):]
			if useAlpha {
				levels[y*size.X+x] = p[3]
				continue
			}
			levels[y*size.X+x] = color.GrayModel.Convert(color.NRGBA{R: p[0], G: p[1], B: p[2], A: 255}).(color.Gray).Y
		}
	}
	return levels
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}
