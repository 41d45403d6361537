package accel

import (
	"errors"
	"image"

	"github.com/bmharper/cimg/v2"
	"github.com/disintegration/imaging"
)

var ErrOddDimensions = errors.New("YUV420p images must have even width and height")

// Planar YUV 420 image
type YUVImage struct {
	Width  int
	Height int
	Y      []byte
	U      []byte
	V      []byte
}

// NewYUVImage allocates a tightly packed YUV420p image
func NewYUVImage(width, height int) (*YUVImage, error) {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return nil, ErrOddDimensions
	}
	return &YUVImage{
		Width:  width,
		Height: height,
		Y:      make([]byte, width*height),
		U:      make([]byte, width*height/4),
		V:      make([]byte, width*height/4),
	}, nil
}

// Infer our stride from the Y buffer size
func (x *YUVImage) YStride() int {
	return len(x.Y) / x.Height
}

// Infer our stride from the U buffer size
func (x *YUVImage) UStride() int {
	return len(x.U) / (x.Height / 2)
}

// Infer our stride from the V buffer size
func (x *YUVImage) VStride() int {
	return len(x.V) / (x.Height / 2)
}

// IsValid returns true if the planes are large enough for the declared dimensions
func (x *YUVImage) IsValid() bool {
	if x.Width <= 0 || x.Height < 2 {
		return false
	}
	return x.YStride() >= x.Width && x.UStride() >= x.Width/2 && x.VStride() >= x.Width/2
}

// RGBAt returns the RGB value of a single pixel
func (x *YUVImage) RGBAt(px, py int) (r, g, b uint8) {
	yv := x.Y[py*x.YStride()+px]
	cu := x.U[(py/2)*x.UStride()+px/2]
	cv := x.V[(py/2)*x.VStride()+px/2]
	return YUVToRGB(yv, cu, cv)
}

// MeanLuma returns the average Y value of the image, between 0 and 255
func (x *YUVImage) MeanLuma() float64 {
	stride := x.YStride()
	total := int64(0)
	for py := 0; py < x.Height; py++ {
		for _, v := range x.Y[py*stride : py*stride+x.Width] {
			total += int64(v)
		}
	}
	return float64(total) / float64(x.Width*x.Height)
}

// Transcode from YUV420p to RGB
func (x *YUVImage) ToCImageRGB() *cimg.Image {
	dst := cimg.NewImage(x.Width, x.Height, cimg.PixelFormatRGB)
	YUV420pToRGB(x.Width, x.Height, x.Y, x.U, x.V, x.YStride(), x.UStride(), x.VStride(), dst.Stride, dst.Pixels)
	return dst
}

// YUVFromImage converts any image into a tightly packed YUV420p image.
// If the image has odd dimensions, the last row and/or column is dropped.
func YUVFromImage(img image.Image) (*YUVImage, error) {
	// imaging.Clone always produces a zero-origin NRGBA image with a tight stride
	nrgba := imaging.Clone(img)
	rgba, err := cimg.FromImage(nrgba, true)
	if err != nil {
		return nil, err
	}
	return YUVFromCImage(rgba)
}

// YUVFromCImage converts an RGB or RGBA cimg image into a tightly packed YUV420p image
func YUVFromCImage(img *cimg.Image) (*YUVImage, error) {
	width := img.Width &^ 1
	height := img.Height &^ 1
	dst, err := NewYUVImage(width, height)
	if err != nil {
		return nil, err
	}
	nchan := img.NChan()
	if nchan == 3 {
		RGBToYUV420p(width, height, img.Pixels, img.Stride, dst.Y, dst.U, dst.V, width, width/2, width/2)
		return dst, nil
	}
	rgb := make([]byte, width*height*3)
	for py := 0; py < height; py++ {
		src := img.Pixels[py*img.Stride:]
		row := rgb[py*width*3:]
		for px := 0; px < width; px++ {
			copy(row[px*3:px*3+3], src[px*nchan:px*nchan+3])
		}
	}
	RGBToYUV420p(width, height, rgb, width*3, dst.Y, dst.U, dst.V, width, width/2, width/2)
	return dst, nil
}
