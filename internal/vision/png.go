package vision

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/born-ml/vae/internal/tensor"
)

// ToImage converts a [C,H,W] tensor with values in [0, 1] to an image.
// One channel gives a grayscale image, three give RGBA.
func ToImage(t *tensor.Tensor[float32]) (image.Image, error) {
	shape := t.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("expected [C,H,W] image, got shape %v", shape)
	}
	c, h, w := shape[0], shape[1], shape[2]
	data := t.Data()
	plane := h * w

	switch c {
	case 1:
		img := image.NewGray(image.Rect(0, 0, w, h))
		for i, v := range data {
			img.Pix[i] = toByte(v)
		}
		return img, nil
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := range plane {
			img.Pix[i*4+0] = toByte(data[i])
			img.Pix[i*4+1] = toByte(data[plane+i])
			img.Pix[i*4+2] = toByte(data[2*plane+i])
			img.Pix[i*4+3] = color.Opaque.A
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported channel count %d", c)
	}
}

// SavePNG writes a [C,H,W] image tensor to path, creating parent directories.
func SavePNG(path string, t *tensor.Tensor[float32]) error {
	img, err := ToImage(t)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create image directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// SaveGrid arranges a [N,C,H,W] batch with MakeGrid and writes it to path.
func SaveGrid(path string, images *tensor.Tensor[float32], opts GridOptions) error {
	grid, err := MakeGrid(images, opts)
	if err != nil {
		return err
	}
	return SavePNG(path, grid)
}

// toByte maps [0, 1] to [0, 255] with rounding and clamping.
func toByte(v float32) uint8 {
	x := v*255 + 0.5
	switch {
	case x <= 0:
		return 0
	case x >= 255:
		return 255
	default:
		return uint8(x)
	}
}
