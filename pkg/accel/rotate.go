package accel

import "github.com/bmharper/cimg/v2"

// RotateImage returns img rotated clockwise by degrees (0, 90, 180, 270).
// Other angles are treated as 0, and img itself is returned.
func RotateImage(img *cimg.Image, degrees int) *cimg.Image {
	degrees = ((degrees % 360) + 360) % 360
	if degrees != 90 && degrees != 180 && degrees != 270 {
		return img
	}
	nchan := img.NChan()
	dw, dh := img.Width, img.Height
	if degrees != 180 {
		dw, dh = img.Height, img.Width
	}
	dst := cimg.NewImage(dw, dh, img.Format)
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride:]
		for x := 0; x < img.Width; x++ {
			var dx, dy int
			switch degrees {
			case 90:
				dx, dy = img.Height-1-y, x
			case 180:
				dx, dy = img.Width-1-x, img.Height-1-y
			case 270:
				dx, dy = y, img.Width-1-x
			}
			copy(dst.Pixels[dy*dst.Stride+dx*nchan:dy*dst.Stride+dx*nchan+nchan], src[x*nchan:x*nchan+nchan])
		}
	}
	return dst
}
