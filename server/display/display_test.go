package display

import (
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/imclass/pkg/nn"
	"github.com/cyclopcam/imclass/server/monitor"
	"github.com/stretchr/testify/require"
)

func TestFormatLines(t *testing.T) {
	r := &monitor.AnalysisResult{
		Top: []nn.ClassPrediction{
			{Index: 4, Label: "tabby cat", Score: 0.8123},
			{Index: 7, Label: "tiger cat", Score: 0.1},
			{Index: 1, Label: "class 1", Score: 0.006},
		},
		ForwardDuration:  37*time.Millisecond + 900*time.Microsecond,
		AnalysisDuration: 40 * time.Millisecond,
		AvgForwardMS:     36.6,
		FPS:              25,
	}
	require.Equal(t, []string{
		"25.00 fps",
		"37 ms",
		"37 ms avg",
		"tabby cat : 0.81",
		"tiger cat : 0.10",
		"class 1 : 0.01",
	}, FormatLines(r))
	require.Equal(t, "25.00 fps\n37 ms\n37 ms avg\ntabby cat : 0.81\ntiger cat : 0.10\nclass 1 : 0.01", Text(r))

	// No predictions, only the performance lines
	empty := &monitor.AnalysisResult{FPS: 1234.5678}
	require.Equal(t, []string{"1234.57 fps", "0 ms", "0 ms avg"}, FormatLines(empty))
}

func TestAnnotate(t *testing.T) {
	src := cimg.NewImage(200, 120, cimg.PixelFormatRGB)
	for i := range src.Pixels {
		src.Pixels[i] = 200
	}
	out, err := Annotate(src, []string{"25.00 fps", "cat : 0.90"})
	require.NoError(t, err)
	require.Equal(t, 200, out.Width)
	require.Equal(t, 120, out.Height)
	require.Equal(t, cimg.PixelFormatRGB, out.Format)

	// The source is untouched
	require.Equal(t, byte(200), src.Pixels[0])

	// Top left is darkened by the text box, bottom right is untouched
	require.Less(t, out.Pixels[0], byte(200))
	last := (out.Height-1)*out.Stride + (out.Width-1)*3
	require.Equal(t, byte(200), out.Pixels[last])

	// No lines means no box
	plain, err := Annotate(src, nil)
	require.NoError(t, err)
	require.Equal(t, byte(200), plain.Pixels[0])

	// RGBA input comes back as RGB, with the same pixels where nothing was drawn
	rgba := cimg.NewImage(40, 30, cimg.PixelFormatRGBA)
	for i := 0; i < len(rgba.Pixels); i += 4 {
		rgba.Pixels[i] = 10
		rgba.Pixels[i+1] = 100
		rgba.Pixels[i+2] = 250
		rgba.Pixels[i+3] = 255
	}
	fromRGBA, err := Annotate(rgba, nil)
	require.NoError(t, err)
	require.Equal(t, cimg.PixelFormatRGB, fromRGBA.Format)
	require.Equal(t, 40, fromRGBA.Width)
	require.Equal(t, []byte{10, 100, 250}, fromRGBA.Pixels[:3])

	_, err = Annotate(cimg.NewImage(10, 10, cimg.PixelFormatGRAY), nil)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = Annotate(nil, nil)
	require.Error(t, err)
}
