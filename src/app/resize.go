package app

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
)

const maxImageSide = 800

// Resized is an image re-encoded after fitting it inside the size limit.
type Resized struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Resizer fits images inside a maxSide x maxSide box.
type Resizer struct {
	maxSide int
}

func NewResizer() *Resizer {
	return &Resizer{maxSide: maxImageSide}
}

// Fit decodes raw, scales it down so neither side exceeds the limit while
// keeping the aspect ratio, and re-encodes it in its source format. Smaller
// images are re-encoded without upscaling.
func (r *Resizer) Fit(raw []byte) (*Resized, error) {
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, BadRequestf("unsupported or corrupt image: %v", err)
	}
	target, err := imaging.FormatFromExtension(format)
	if err != nil {
		return nil, BadRequestf("unsupported image format %q", format)
	}

	dst := imaging.Fit(src, r.maxSide, r.maxSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, target); err != nil {
		return nil, Internal("failed to encode image", err)
	}
	bounds := dst.Bounds()
	return &Resized{
		Data:        buf.Bytes(),
		ContentType: "image/" + format,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}
