package transform

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func gradientImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 11), B: uint8((x + y) * 3), A: 255})
		}
	}
	return img
}

func mustApply(t *testing.T, src image.Image, op Operation) *image.NRGBA {
	t.Helper()
	out, err := Apply(src, op)
	if err != nil {
		t.Fatalf("apply %s: %v", op, err)
	}
	return out
}

func TestCropOutOfBoundsIsRejected(t *testing.T) {
	src := gradientImage(20, 10)
	cases := []Operation{
		Crop(0, 0, 21, 10),
		Crop(-1, 0, 5, 5),
		Crop(5, 5, 5, 8),
		Crop(6, 2, 4, 8),
	}
	for _, op := range cases {
		if _, err := Apply(src, op); !errors.Is(err, ErrCropOutOfBounds) {
			t.Fatalf("%s: expected crop bounds error, got %v", op, err)
		}
	}
}

func TestCropUsesSourceCoordinates(t *testing.T) {
	src := gradientImage(20, 10)
	out := mustApply(t, src, Crop(2, 3, 12, 8))
	if out.Bounds().Dx() != 10 || out.Bounds().Dy() != 5 {
		t.Fatalf("unexpected crop size %v", out.Bounds())
	}
	if got, want := out.NRGBAAt(0, 0), src.NRGBAAt(2, 3); got != want {
		t.Fatalf("expected top-left pixel %v, got %v", want, got)
	}
}

func TestGrayscaleKeepsThreeEqualChannels(t *testing.T) {
	out := mustApply(t, gradientImage(6, 6), Grayscale())
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] != out.Pix[i+1] || out.Pix[i] != out.Pix[i+2] {
			t.Fatalf("pixel %d is not gray: %v", i/4, out.Pix[i:i+4])
		}
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	src := gradientImage(16, 12)
	ops := []Operation{Rotate(33), Resize(7, 9), Brightness(1.3), Contrast(0.6), Blur(1.5), Sharpen(), Sepia(), Invert()}
	for _, op := range ops {
		first := mustApply(t, src, op)
		second := mustApply(t, src, op)
		if !bytes.Equal(first.Pix, second.Pix) {
			t.Fatalf("%s produced different pixels on repeated runs", op)
		}
	}
}

func TestResizeIsExact(t *testing.T) {
	out := mustApply(t, gradientImage(40, 30), Resize(13, 17))
	if out.Bounds().Dx() != 13 || out.Bounds().Dy() != 17 {
		t.Fatalf("expected 13x17, got %v", out.Bounds())
	}
	if _, err := Apply(gradientImage(4, 4), Resize(0, 10)); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected invalid parameters for zero width, got %v", err)
	}
}

func TestRotateExpandsCanvas(t *testing.T) {
	src := gradientImage(20, 10)
	quarter := mustApply(t, src, Rotate(90))
	if quarter.Bounds().Dx() != 10 || quarter.Bounds().Dy() != 20 {
		t.Fatalf("expected 10x20 after quarter turn, got %v", quarter.Bounds())
	}
	// Counter-clockwise: the top-right source pixel lands top-left.
	if got, want := quarter.NRGBAAt(0, 0), src.NRGBAAt(19, 0); got != want {
		t.Fatalf("expected %v at origin, got %v", want, got)
	}

	tilted := mustApply(t, src, Rotate(45))
	if tilted.Bounds().Dx() <= 20 || tilted.Bounds().Dy() <= 10 {
		t.Fatalf("expected expanded canvas, got %v", tilted.Bounds())
	}
	if corner := tilted.NRGBAAt(0, 0); corner != (color.NRGBA{A: 255}) {
		t.Fatalf("expected black fill in corner, got %v", corner)
	}
}

func TestBlurZeroRadiusIsNoOp(t *testing.T) {
	src := gradientImage(9, 9)
	out := mustApply(t, src, Blur(0))
	if !bytes.Equal(out.Pix, src.Pix) {
		t.Fatalf("expected blur(0) to keep pixels")
	}
	if _, err := Apply(src, Blur(-1)); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected negative radius to fail, got %v", err)
	}
}

func TestBrightnessMultipliesChannels(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 100, G: 200, B: 10, A: 255})
	out := mustApply(t, src, Brightness(1.5))
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{R: 150, G: 255, B: 15, A: 255}) {
		t.Fatalf("unexpected brightened pixel %v", got)
	}
	if _, err := Apply(src, Brightness(0)); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected zero factor to be rejected, got %v", err)
	}
}

func TestContrastPivotsOnMeanLuminance(t *testing.T) {
	src := imaging.New(2, 1, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	out := mustApply(t, src, Contrast(2))
	if got := out.NRGBAAt(0, 0).R; got != 50 {
		t.Fatalf("expected dark pixel pushed to 50, got %d", got)
	}
	if got := out.NRGBAAt(1, 0).R; got != 250 {
		t.Fatalf("expected light pixel pushed to 250, got %d", got)
	}
}

func TestSepiaEndpoints(t *testing.T) {
	src := imaging.New(2, 1, color.NRGBA{A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	out := mustApply(t, src, Sepia())
	if got := out.NRGBAAt(0, 0); got != sepiaDark {
		t.Fatalf("expected black to map to %v, got %v", sepiaDark, got)
	}
	if got := out.NRGBAAt(1, 0); got != sepiaLight {
		t.Fatalf("expected white to map to %v, got %v", sepiaLight, got)
	}
}

func TestInvertComplementsChannels(t *testing.T) {
	src := imaging.New(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	if got := mustApply(t, src, Invert()).NRGBAAt(0, 0); got != (color.NRGBA{R: 245, G: 235, B: 225, A: 255}) {
		t.Fatalf("unexpected inverted pixel %v", got)
	}
}

func TestSharpenLeavesFlatImageUntouched(t *testing.T) {
	src := imaging.New(5, 5, color.NRGBA{R: 90, G: 120, B: 150, A: 255})
	out := mustApply(t, src, Sharpen())
	if !bytes.Equal(out.Pix, src.Pix) {
		t.Fatalf("expected flat image to survive sharpening unchanged")
	}
}

func TestApplyUnknownKind(t *testing.T) {
	if _, err := Apply(gradientImage(2, 2), Operation{Kind: "emboss"}); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected unsupported operation, got %v", err)
	}
}

func TestSaveRejectsWebP(t *testing.T) {
	dir := t.TempDir()
	if err := Save(gradientImage(3, 3), filepath.Join(dir, "out.webp")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	pngPath := filepath.Join(dir, "out.png")
	if err := Save(gradientImage(3, 3), pngPath); err != nil {
		t.Fatalf("save png: %v", err)
	}
	reopened, err := Open(pngPath)
	if err != nil {
		t.Fatalf("reopen png: %v", err)
	}
	if !bytes.Equal(imaging.Clone(reopened).Pix, gradientImage(3, 3).Pix) {
		t.Fatalf("expected png round trip to keep pixels")
	}
}

func TestDecodeGarbageWrapsErrDecode(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("definitely not pixels"))); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
