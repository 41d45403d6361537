// Package display turns analysis results into human readable text, and draws that text over frames
package display

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/imclass/server/monitor"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

var ErrUnsupportedFormat = errors.New("Only RGB and RGBA images can be annotated")

const (
	margin     = 6
	lineHeight = 15
)

// FormatLines produces the status text for a result:
// frame rate, forward duration, moving average, and then one line per prediction.
func FormatLines(r *monitor.AnalysisResult) []string {
	lines := []string{
		fmt.Sprintf("%3.2f fps", r.FPS),
		fmt.Sprintf("%d ms", r.ForwardDuration.Milliseconds()),
		fmt.Sprintf("%.0f ms avg", r.AvgForwardMS),
	}
	for _, p := range r.Top {
		lines = append(lines, fmt.Sprintf("%v : %.2f", p.Label, p.Score))
	}
	return lines
}

// Text is FormatLines joined by newlines
func Text(r *monitor.AnalysisResult) string {
	return strings.Join(FormatLines(r), "\n")
}

// Annotate returns a copy of img with lines drawn in the top left corner.
// The result is always RGB.
func Annotate(img *cimg.Image, lines []string) (*cimg.Image, error) {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return nil, errors.New("Image is empty")
	}
	if img.Format != cimg.PixelFormatRGB && img.Format != cimg.PixelFormatRGBA {
		return nil, ErrUnsupportedFormat
	}
	src, err := img.ToImage()
	if err != nil {
		return nil, err
	}

	dc := gg.NewContextForImage(src)
	dc.SetFontFace(basicfont.Face7x13)
	boxWidth := 0.0
	for _, line := range lines {
		w, _ := dc.MeasureString(line)
		boxWidth = max(boxWidth, w)
	}
	if len(lines) != 0 {
		dc.SetRGBA(0, 0, 0, 0.6)
		dc.DrawRectangle(0, 0, boxWidth+2*margin, float64(len(lines)*lineHeight+margin))
		dc.Fill()
	}
	dc.SetRGB(1, 1, 1)
	for i, line := range lines {
		dc.DrawString(line, margin, float64((i+1)*lineHeight))
	}

	out, err := cimg.FromImage(dc.Image(), true)
	if err != nil {
		return nil, err
	}
	return out.ToRGB(), nil
}
