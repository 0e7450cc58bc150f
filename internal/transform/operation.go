package transform

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind names a transform operation.
type Kind string

const (
	KindRotate     Kind = "rotate"
	KindCrop       Kind = "crop"
	KindResize     Kind = "resize"
	KindBrightness Kind = "brightness"
	KindContrast   Kind = "contrast"
	KindBlur       Kind = "blur"
	KindSharpen    Kind = "sharpen"
	KindGrayscale  Kind = "grayscale"
	KindSepia      Kind = "sepia"
	KindInvert     Kind = "invert"
)

var (
	// ErrUnsupportedOperation is returned for an unknown operation kind.
	ErrUnsupportedOperation = errors.New("transform: unsupported operation")
	// ErrInvalidParameters is returned when an operation's parameters are out of range.
	ErrInvalidParameters = errors.New("transform: invalid parameters")
	// ErrCropOutOfBounds is returned for crop rectangles that are empty or leave the image.
	ErrCropOutOfBounds = errors.New("transform: crop rectangle outside image bounds")
)

// Params carries the union of operation parameters; each kind reads only its own fields.
type Params struct {
	Angle  float64 `json:"angle,omitempty"`
	Left   int     `json:"left,omitempty"`
	Top    int     `json:"top,omitempty"`
	Right  int     `json:"right,omitempty"`
	Bottom int     `json:"bottom,omitempty"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	Factor float64 `json:"factor,omitempty"`
	Radius float64 `json:"radius,omitempty"`
}

// Operation is a single named, parameterized pixel operation.
type Operation struct {
	Kind   Kind   `json:"kind"`
	Params Params `json:"params"`
}

func Rotate(angle float64) Operation {
	return Operation{Kind: KindRotate, Params: Params{Angle: angle}}
}

func Crop(left, top, right, bottom int) Operation {
	return Operation{Kind: KindCrop, Params: Params{Left: left, Top: top, Right: right, Bottom: bottom}}
}

func Resize(width, height int) Operation {
	return Operation{Kind: KindResize, Params: Params{Width: width, Height: height}}
}

func Brightness(factor float64) Operation {
	return Operation{Kind: KindBrightness, Params: Params{Factor: factor}}
}

func Contrast(factor float64) Operation {
	return Operation{Kind: KindContrast, Params: Params{Factor: factor}}
}

func Blur(radius float64) Operation {
	return Operation{Kind: KindBlur, Params: Params{Radius: radius}}
}

func Sharpen() Operation   { return Operation{Kind: KindSharpen} }
func Grayscale() Operation { return Operation{Kind: KindGrayscale} }
func Sepia() Operation     { return Operation{Kind: KindSepia} }
func Invert() Operation    { return Operation{Kind: KindInvert} }

// String renders the operation in the textual form accepted by Parse.
func (op Operation) String() string {
	p := op.Params
	switch op.Kind {
	case KindRotate:
		return fmt.Sprintf("rotate=%s", formatFloat(p.Angle))
	case KindCrop:
		return fmt.Sprintf("crop=%d,%d,%d,%d", p.Left, p.Top, p.Right, p.Bottom)
	case KindResize:
		return fmt.Sprintf("resize=%dx%d", p.Width, p.Height)
	case KindBrightness, KindContrast:
		return fmt.Sprintf("%s=%s", op.Kind, formatFloat(p.Factor))
	case KindBlur:
		return fmt.Sprintf("blur=%s", formatFloat(p.Radius))
	default:
		return string(op.Kind)
	}
}

// Validate checks parameters without touching any pixels. Crop bounds need the
// source image and are checked in Apply.
func (op Operation) Validate() error {
	p := op.Params
	switch op.Kind {
	case KindRotate:
		if !isFinite(p.Angle) {
			return fmt.Errorf("%w: rotate angle %v", ErrInvalidParameters, p.Angle)
		}
	case KindCrop:
		if p.Right <= p.Left || p.Bottom <= p.Top {
			return fmt.Errorf("%w: empty rectangle (%d,%d)-(%d,%d)", ErrCropOutOfBounds, p.Left, p.Top, p.Right, p.Bottom)
		}
	case KindResize:
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("%w: resize %dx%d", ErrInvalidParameters, p.Width, p.Height)
		}
	case KindBrightness, KindContrast:
		if !isFinite(p.Factor) || p.Factor <= 0 {
			return fmt.Errorf("%w: %s factor must be positive, got %v", ErrInvalidParameters, op.Kind, p.Factor)
		}
	case KindBlur:
		if !isFinite(p.Radius) || p.Radius < 0 {
			return fmt.Errorf("%w: blur radius must be >= 0, got %v", ErrInvalidParameters, p.Radius)
		}
	case KindSharpen, KindGrayscale, KindSepia, KindInvert:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedOperation, op.Kind)
	}
	return nil
}

// Parse reads "kind" or "kind=value" forms:
//
//	rotate=90  crop=10,10,200,120  resize=800x600  brightness=1.2
//	contrast=0.8  blur=2  sharpen  grayscale  sepia  invert
func Parse(input string) (Operation, error) {
	name, value, hasValue := strings.Cut(strings.TrimSpace(input), "=")
	kind := Kind(strings.ToLower(strings.TrimSpace(name)))
	value = strings.TrimSpace(value)

	var op Operation
	switch kind {
	case KindRotate:
		angle, err := parseFloat(kind, value)
		if err != nil {
			return Operation{}, err
		}
		op = Rotate(angle)
	case KindCrop:
		parts := strings.Split(value, ",")
		if len(parts) != 4 {
			return Operation{}, fmt.Errorf("%w: crop expects left,top,right,bottom", ErrInvalidParameters)
		}
		var bounds [4]int
		for i, part := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return Operation{}, fmt.Errorf("%w: crop coordinate %q", ErrInvalidParameters, part)
			}
			bounds[i] = n
		}
		op = Crop(bounds[0], bounds[1], bounds[2], bounds[3])
	case KindResize:
		width, height, err := ParseDimensions(value)
		if err != nil {
			return Operation{}, err
		}
		op = Resize(width, height)
	case KindBrightness, KindContrast:
		factor, err := parseFloat(kind, value)
		if err != nil {
			return Operation{}, err
		}
		op = Operation{Kind: kind, Params: Params{Factor: factor}}
	case KindBlur:
		radius := 2.0
		if hasValue {
			parsed, err := parseFloat(kind, value)
			if err != nil {
				return Operation{}, err
			}
			radius = parsed
		}
		op = Blur(radius)
	case KindSharpen, KindGrayscale, KindSepia, KindInvert:
		if hasValue && value != "" {
			return Operation{}, fmt.Errorf("%w: %s takes no value", ErrInvalidParameters, kind)
		}
		op = Operation{Kind: kind}
	default:
		return Operation{}, fmt.Errorf("%w: %q", ErrUnsupportedOperation, name)
	}
	if err := op.Validate(); err != nil {
		return Operation{}, err
	}
	return op, nil
}

// ParseDimensions reads "WIDTHxHEIGHT" (also accepting "WIDTH,HEIGHT").
func ParseDimensions(value string) (int, int, error) {
	sep := "x"
	if strings.Contains(value, ",") {
		sep = ","
	}
	w, h, ok := strings.Cut(strings.ToLower(value), sep)
	if !ok {
		return 0, 0, fmt.Errorf("%w: dimensions %q, want WIDTHxHEIGHT", ErrInvalidParameters, value)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: width %q is not a number", ErrInvalidParameters, w)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: height %q is not a number", ErrInvalidParameters, h)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: dimensions must be positive, got %dx%d", ErrInvalidParameters, width, height)
	}
	return width, height, nil
}

func parseFloat(kind Kind, value string) (float64, error) {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s value %q", ErrInvalidParameters, kind, value)
	}
	return parsed, nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
