// Package transform applies single pixel operations to decoded images.
package transform

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

var (
	rotateFill = color.NRGBA{A: 255}

	sepiaDark  = color.NRGBA{R: 0x70, G: 0x42, B: 0x14, A: 255}
	sepiaLight = color.NRGBA{R: 0xC0, G: 0xA0, B: 0x80, A: 255}

	sharpenKernel = [9]float64{
		-2, -2, -2,
		-2, 32, -2,
		-2, -2, -2,
	}
)

// Apply runs one operation on src and returns a new image. src is never modified.
func Apply(src image.Image, op Operation) (*image.NRGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidParameters)
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}

	p := op.Params
	switch op.Kind {
	case KindRotate:
		return imaging.Rotate(src, p.Angle, rotateFill), nil
	case KindCrop:
		return cropImage(src, p)
	case KindResize:
		return imaging.Resize(src, p.Width, p.Height, imaging.Lanczos), nil
	case KindBrightness:
		return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{
				R: clampChannel(float64(c.R) * p.Factor),
				G: clampChannel(float64(c.G) * p.Factor),
				B: clampChannel(float64(c.B) * p.Factor),
				A: c.A,
			}
		}), nil
	case KindContrast:
		return adjustContrast(src, p.Factor), nil
	case KindBlur:
		if p.Radius == 0 {
			return imaging.Clone(src), nil
		}
		return imaging.Blur(src, p.Radius), nil
	case KindSharpen:
		return imaging.Convolve3x3(src, sharpenKernel, &imaging.ConvolveOptions{Normalize: true}), nil
	case KindGrayscale:
		return imaging.Grayscale(src), nil
	case KindSepia:
		return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
			l := luminance(c) / 255
			return color.NRGBA{
				R: clampChannel(lerp(sepiaDark.R, sepiaLight.R, l)),
				G: clampChannel(lerp(sepiaDark.G, sepiaLight.G, l)),
				B: clampChannel(lerp(sepiaDark.B, sepiaLight.B, l)),
				A: c.A,
			}
		}), nil
	case KindInvert:
		return imaging.Invert(src), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperation, op.Kind)
}

// ApplyAll runs ops in order, each on the previous result.
func ApplyAll(src image.Image, ops ...Operation) (*image.NRGBA, error) {
	current := imaging.Clone(src)
	for _, op := range ops {
		next, err := Apply(current, op)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		current = next
	}
	return current, nil
}

func cropImage(src image.Image, p Params) (*image.NRGBA, error) {
	bounds := src.Bounds()
	rect := image.Rect(p.Left, p.Top, p.Right, p.Bottom).Add(bounds.Min)
	if p.Left < 0 || p.Top < 0 || rect.Empty() || !rect.In(bounds) {
		return nil, fmt.Errorf("%w: (%d,%d)-(%d,%d) in %dx%d image",
			ErrCropOutOfBounds, p.Left, p.Top, p.Right, p.Bottom, bounds.Dx(), bounds.Dy())
	}
	return imaging.Crop(src, rect), nil
}

// adjustContrast scales every channel around the mean luminance of the image.
func adjustContrast(src image.Image, factor float64) *image.NRGBA {
	gray := imaging.Grayscale(src)
	var total float64
	pixels := gray.Rect.Dx() * gray.Rect.Dy()
	for i := 0; i < len(gray.Pix); i += 4 {
		total += float64(gray.Pix[i])
	}
	mean := 0.0
	if pixels > 0 {
		mean = math.Floor(total/float64(pixels) + 0.5)
	}
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clampChannel(mean + (float64(c.R)-mean)*factor),
			G: clampChannel(mean + (float64(c.G)-mean)*factor),
			B: clampChannel(mean + (float64(c.B)-mean)*factor),
			A: c.A,
		}
	})
}

func luminance(c color.NRGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}

func lerp(from, to uint8, t float64) float64 {
	return float64(from) + (float64(to)-float64(from))*t
}

func clampChannel(value float64) uint8 {
	switch {
	case value <= 0:
		return 0
	case value >= 255:
		return 255
	default:
		return uint8(value + 0.5)
	}
}
