package nn

import (
	"fmt"
	"image"

	"github.com/cyclopcam/imclass/pkg/accel"
	"github.com/cyclopcam/imclass/pkg/gen"
	"github.com/disintegration/imaging"
)

// Normalization is applied to each RGB channel as (v/255 - Mean) / Std
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

// TorchvisionNormalization is the ImageNet normalization used by torchvision models
var TorchvisionNormalization = Normalization{
	Mean: [3]float32{0.485, 0.456, 0.406},
	Std:  [3]float32{0.229, 0.224, 0.225},
}

// Returns the scale and bias that maps a byte straight to a normalized value
func (n Normalization) factors() (scale, bias [3]float32) {
	for c := 0; c < 3; c++ {
		scale[c] = 1 / (255 * n.Std[c])
		bias[c] = -n.Mean[c] / n.Std[c]
	}
	return
}

// NewTensor allocates a planar RGB tensor
func NewTensor(width, height int) []float32 {
	return make([]float32, 3*width*height)
}

// RotatedSize returns the size of a width x height image after rotating it
func RotatedSize(width, height, rotationDegrees int) (int, int) {
	if rotationDegrees == 90 || rotationDegrees == 270 {
		return height, width
	}
	return width, height
}

// NormalizeRotation maps any multiple of 90 into 0, 90, 180 or 270
func NormalizeRotation(rotationDegrees int) (int, error) {
	r := ((rotationDegrees % 360) + 360) % 360
	if r%90 != 0 {
		return 0, fmt.Errorf("Rotation %v is not a multiple of 90 degrees", rotationDegrees)
	}
	return r, nil
}

// Map a pixel in the upright (rotated) image back to the source image.
// rotation is the clockwise rotation that makes the source image upright.
func rotatedToSource(rotation, rx, ry, srcWidth, srcHeight int) (int, int) {
	switch rotation {
	case 90:
		return ry, srcHeight - 1 - rx
	case 180:
		return srcWidth - 1 - rx, srcHeight - 1 - ry
	case 270:
		return srcWidth - 1 - ry, rx
	}
	return rx, ry
}

// YUVCenterCropToTensor rotates the frame clockwise by rotationDegrees, takes the largest
// centered crop with the aspect ratio of the tensor, samples it down to width x height,
// and writes a planar RGB tensor with the given normalization into dst.
func YUVCenterCropToTensor(img *accel.YUVImage, rotationDegrees, width, height int, norm Normalization, dst []float32) error {
	if img == nil || !img.IsValid() {
		return ErrEmptyImage
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("Invalid tensor size %v x %v", width, height)
	}
	if len(dst) < 3*width*height {
		return ErrTensorTooSmall
	}
	rotation, err := NormalizeRotation(rotationDegrees)
	if err != nil {
		return err
	}
	rw, rh := RotatedSize(img.Width, img.Height, rotation)

	// Size of one tensor pixel, in rotated image pixels
	step := min(float64(rw)/float64(width), float64(rh)/float64(height))
	originX := (float64(rw) - step*float64(width)) / 2
	originY := (float64(rh) - step*float64(height)) / 2

	scale, bias := norm.factors()
	plane := width * height
	for ty := 0; ty < height; ty++ {
		ry := gen.Clamp(int(originY+(float64(ty)+0.5)*step), 0, rh-1)
		for tx := 0; tx < width; tx++ {
			rx := gen.Clamp(int(originX+(float64(tx)+0.5)*step), 0, rw-1)
			sx, sy := rotatedToSource(rotation, rx, ry, img.Width, img.Height)
			r, g, b := img.RGBAt(sx, sy)
			i := ty*width + tx
			dst[i] = float32(r)*scale[0] + bias[0]
			dst[plane+i] = float32(g)*scale[1] + bias[1]
			dst[2*plane+i] = float32(b)*scale[2] + bias[2]
		}
	}
	return nil
}

// ImageToTensor center crops and resizes an image to width x height,
// and writes a planar RGB tensor with the given normalization into dst.
func ImageToTensor(img image.Image, width, height int, norm Normalization, dst []float32) error {
	if img == nil || img.Bounds().Empty() {
		return ErrEmptyImage
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("Invalid tensor size %v x %v", width, height)
	}
	if len(dst) < 3*width*height {
		return ErrTensorTooSmall
	}
	fitted := imaging.Fill(img, width, height, imaging.Center, imaging.Linear)
	scale, bias := norm.factors()
	plane := width * height
	for y := 0; y < height; y++ {
		row := fitted.Pix[y*fitted.Stride:]
		for x := 0; x < width; x++ {
			i := y*width + x
			dst[i] = float32(row[x*4])*scale[0] + bias[0]
			dst[plane+i] = float32(row[x*4+1])*scale[1] + bias[1]
			dst[2*plane+i] = float32(row[x*4+2])*scale[2] + bias[2]
		}
	}
	return nil
}
