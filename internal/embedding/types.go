package embedding

import (
	"context"
	"fmt"
)

// FileID is an opaque, stable handle for one input file. In practice it is an
// absolute, cleaned path.
type FileID string

// Tensor is the fixed-shape numeric input handed to the inference collaborator.
// Data is laid out in row-major order of Shape.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Validate checks that Data holds exactly as many elements as Shape describes.
func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return fmt.Errorf("tensor has no shape")
	}
	n := 1
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("tensor shape %v has non-positive dimension", t.Shape)
		}
		n *= d
	}
	if n != len(t.Data) {
		return fmt.Errorf("tensor shape %v needs %d elements, got %d", t.Shape, n, len(t.Data))
	}
	return nil
}

// Decoder turns a file into a model-ready tensor.
//
// Implementations must be safe for concurrent use. Errors should be, or wrap,
// *DecodeError; anything else is wrapped by the pipeline.
type Decoder interface {
	Decode(ctx context.Context, id FileID) (Tensor, error)
}

// Inferencer runs the model over a tensor and returns the raw feature vector.
//
// The pipeline never calls Infer more than Config.InferenceSlots times
// concurrently, so implementations only need to tolerate that many callers.
type Inferencer interface {
	Infer(ctx context.Context, t Tensor) ([]float32, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, id FileID) (Tensor, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(ctx context.Context, id FileID) (Tensor, error) {
	return f(ctx, id)
}

// InferencerFunc adapts a function to the Inferencer interface.
type InferencerFunc func(ctx context.Context, t Tensor) ([]float32, error)

// Infer implements Inferencer.
func (f InferencerFunc) Infer(ctx context.Context, t Tensor) ([]float32, error) {
	return f(ctx, t)
}
