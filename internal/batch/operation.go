package batch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/gallery/internal/transform"
)

// KindAddTag is the only catalog operation; every other kind is a transform kind.
const KindAddTag = "add_tag"

// ErrInvalidJob is returned before any step runs when the job cannot be executed.
var ErrInvalidJob = errors.New("batch: invalid job")

// Operation is one step applied to every selected photo.
type Operation struct {
	Kind   string           `json:"kind"`
	Params transform.Params `json:"params"`
	Tag    string           `json:"tag,omitempty"`
}

func Resize(width, height int) Operation {
	return FromTransform(transform.Resize(width, height))
}

func Grayscale() Operation {
	return FromTransform(transform.Grayscale())
}

func AddTag(tag string) Operation {
	return Operation{Kind: KindAddTag, Tag: tag}
}

// FromTransform wraps a pixel operation.
func FromTransform(op transform.Operation) Operation {
	return Operation{Kind: string(op.Kind), Params: op.Params}
}

// IsCatalog reports whether the step goes to the catalog backend instead of the pixels.
func (o Operation) IsCatalog() bool {
	return o.Kind == KindAddTag
}

// Transform returns the pixel operation for non-catalog steps.
func (o Operation) Transform() transform.Operation {
	return transform.Operation{Kind: transform.Kind(o.Kind), Params: o.Params}
}

func (o Operation) String() string {
	if o.IsCatalog() {
		return fmt.Sprintf("%s=%s", KindAddTag, o.Tag)
	}
	return o.Transform().String()
}

// Validate checks parameters that do not depend on a particular image.
func (o Operation) Validate() error {
	if o.IsCatalog() {
		if strings.TrimSpace(o.Tag) == "" {
			return fmt.Errorf("%w: tag must not be empty", ErrInvalidJob)
		}
		return nil
	}
	if err := o.Transform().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	return nil
}

// ParseOperation reads a kind and its textual value, for example
// ("resize", "800x600"), ("grayscale", "") or ("add_tag", "holiday").
func ParseOperation(kind, value string) (Operation, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	value = strings.TrimSpace(value)
	if kind == KindAddTag {
		op := AddTag(value)
		if err := op.Validate(); err != nil {
			return Operation{}, err
		}
		return op, nil
	}
	input := kind
	if value != "" {
		input = kind + "=" + value
	}
	parsed, err := transform.Parse(input)
	if err != nil {
		return Operation{}, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	return FromTransform(parsed), nil
}

// ParseSpec reads the single-string form "kind" or "kind=value".
func ParseSpec(spec string) (Operation, error) {
	kind, value, _ := strings.Cut(spec, "=")
	return ParseOperation(kind, value)
}
