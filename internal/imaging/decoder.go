// Package imaging turns image files into model-ready tensors.
package imaging

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/spf13/afero"
	"github.com/steveyegge/dupsweep/internal/embedding"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Config describes the tensor the model expects.
type Config struct {
	// InputSize is the width and height images are resized to.
	// Default: 224
	InputSize int

	// Mean and Std are per-channel (R, G, B) normalization constants applied
	// after scaling pixel values to [0, 1]. Defaults are the ImageNet values.
	Mean [3]float32
	Std  [3]float32
}

// DefaultConfig returns the configuration used by most ImageNet-trained backbones.
func DefaultConfig() Config {
	return Config{
		InputSize: 224,
		Mean:      [3]float32{0.485, 0.456, 0.406},
		Std:       [3]float32{0.229, 0.224, 0.225},
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.InputSize <= 0 {
		return fmt.Errorf("input_size must be positive (got %d)", c.InputSize)
	}
	if c.InputSize > 4096 {
		return fmt.Errorf("input_size too large (got %d, max 4096)", c.InputSize)
	}
	for i, s := range c.Std {
		if s <= 0 {
			return fmt.Errorf("std[%d] must be positive (got %v)", i, s)
		}
	}
	return nil
}

// Decoder implements embedding.Decoder for image files.
type Decoder struct {
	fs  afero.Fs
	cfg Config
}

var _ embedding.Decoder = (*Decoder)(nil)

// NewDecoder creates a decoder reading files from fs.
func NewDecoder(fs afero.Fs, cfg Config) (*Decoder, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid imaging config: %w", err)
	}
	return &Decoder{fs: fs, cfg: cfg}, nil
}

// Shape returns the tensor shape produced by Decode: channels, height, width.
func (d *Decoder) Shape() []int {
	return []int{3, d.cfg.InputSize, d.cfg.InputSize}
}

// Decode reads id, resizes it and returns a CHW float32 tensor.
func (d *Decoder) Decode(ctx context.Context, id embedding.FileID) (embedding.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return embedding.Tensor{}, err
	}

	img, err := d.load(string(id))
	if err != nil {
		return embedding.Tensor{}, &embedding.DecodeError{ID: id, Err: err}
	}
	return embedding.Tensor{Shape: d.Shape(), Data: d.tensorize(img)}, nil
}

func (d *Decoder) load(path string) (image.Image, error) {
	f, err := d.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("image has no pixels")
	}
	return img, nil
}

// tensorize resizes img to InputSize x InputSize and lays the normalized
// channels out as [R plane][G plane][B plane].
func (d *Decoder) tensorize(img image.Image) []float32 {
	size := d.cfg.InputSize
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := dst.PixOffset(x, y)
			idx := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(dst.Pix[off+c]) / 255
				data[c*plane+idx] = (v - d.cfg.Mean[c]) / d.cfg.Std[c]
			}
		}
	}
	return data
}
