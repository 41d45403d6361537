package accel

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestPixelRoundTrip(t *testing.T) {
	colors := [][3]uint8{
		{128, 128, 128},
		{200, 30, 40},
		{20, 180, 60},
		{30, 60, 220},
		{240, 240, 240},
		{16, 16, 16},
	}
	for _, c := range colors {
		y, u, v := RGBToYUV(c[0], c[1], c[2])
		r, g, b := YUVToRGB(y, u, v)
		require.LessOrEqual(t, absDiff(c[0], r), 4, "red of %v", c)
		require.LessOrEqual(t, absDiff(c[1], g), 4, "green of %v", c)
		require.LessOrEqual(t, absDiff(c[2], b), 4, "blue of %v", c)
	}

	// Studio swing black and white
	r, g, b := YUVToRGB(16, 128, 128)
	require.Equal(t, [3]uint8{0, 0, 0}, [3]uint8{r, g, b})
	r, g, b = YUVToRGB(235, 128, 128)
	require.GreaterOrEqual(t, r, uint8(254))
	require.Equal(t, r, g)
	require.Equal(t, r, b)
}

func TestYUVFromImage(t *testing.T) {
	// Left half red, right half blue, with an odd width that must be truncated
	src := image.NewRGBA(image.Rect(0, 0, 9, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 9; x++ {
			if x < 4 {
				src.Set(x, y, color.RGBA{220, 20, 20, 255})
			} else {
				src.Set(x, y, color.RGBA{20, 20, 220, 255})
			}
		}
	}
	yuv, err := YUVFromImage(src)
	require.NoError(t, err)
	require.Equal(t, 8, yuv.Width)
	require.Equal(t, 4, yuv.Height)
	require.Equal(t, 8, yuv.YStride())
	require.Equal(t, 4, yuv.UStride())
	require.True(t, yuv.IsValid())

	r, g, b := yuv.RGBAt(1, 1)
	require.Greater(t, r, uint8(180))
	require.Less(t, g, uint8(60))
	require.Less(t, b, uint8(60))

	r, _, b = yuv.RGBAt(6, 2)
	require.Less(t, r, uint8(60))
	require.Greater(t, b, uint8(180))

	rgb := yuv.ToCImageRGB()
	require.Equal(t, 8, rgb.Width)
	require.Equal(t, rgb.Pixels[0], r0(yuv))

	// Straight from a cimg RGB image gives the same planes
	fromRGB, err := YUVFromCImage(rgb)
	require.NoError(t, err)
	require.Equal(t, 8, fromRGB.Width)
	r, _, b = fromRGB.RGBAt(6, 2)
	require.Less(t, r, uint8(60))
	require.Greater(t, b, uint8(180))
}

func r0(yuv *YUVImage) uint8 {
	r, _, _ := yuv.RGBAt(0, 0)
	return r
}

func TestMeanLuma(t *testing.T) {
	yuv, err := NewYUVImage(4, 2)
	require.NoError(t, err)
	for i := range yuv.Y {
		yuv.Y[i] = uint8(i * 10)
	}
	// 0+10+...+70 = 280 / 8
	require.Equal(t, 35.0, yuv.MeanLuma())

	_, err = NewYUVImage(3, 2)
	require.ErrorIs(t, err, ErrOddDimensions)
}
