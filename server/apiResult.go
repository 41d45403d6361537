package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/imclass/pkg/nn"
	"github.com/cyclopcam/imclass/server/display"
	"github.com/cyclopcam/imclass/server/monitor"
	"github.com/cyclopcam/www"
	"github.com/disintegration/imaging"
	"github.com/julienschmidt/httprouter"
	_ "golang.org/x/image/webp"
)

// SYNC-RESULT-JSON
type resultJSON struct {
	Result *monitor.AnalysisResult `json:"result"`
	Lines  []string                `json:"lines"`
}

func makeResultJSON(r *monitor.AnalysisResult) *resultJSON {
	return &resultJSON{
		Result: r,
		Lines:  display.FormatLines(r),
	}
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	ping := &pingJSON{
		Time: time.Now().Unix(),
	}
	www.SendJSON(w, ping)
}

func (s *Server) httpModel(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type modelJSON struct {
		Name    string                 `json:"name"`
		Config  *nn.ModelConfig        `json:"config"`
		Options monitor.MonitorOptions `json:"options"`
	}
	www.SendJSON(w, &modelJSON{
		Name:    s.Config.Model.Name,
		Config:  s.Monitor.ClassifierConfig(),
		Options: s.Monitor.Options(),
	})
}

// Most recent result from the camera stream
func (s *Server) httpResult(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.CacheNever(w)
	result := s.Monitor.LastResult()
	if result == nil {
		www.PanicBadRequestf("No result available yet")
	}
	www.SendJSON(w, makeResultJSON(result))
}

func (s *Server) httpStats(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.CacheNever(w)
	www.SendJSON(w, s.Monitor.Stats())
}

// Fetch a JPG of the most recently classified frame.
// Example: curl -o img.jpg "localhost:8080/api/latestImage?annotate=1"
func (s *Server) httpLatestImage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.CacheNever(w)
	img, result := s.Monitor.LastImage()
	if img == nil {
		www.PanicBadRequestf("No image available yet")
	}
	if www.QueryInt(r, "annotate") == 1 {
		annotated, err := display.Annotate(img, display.FormatLines(result))
		www.Check(err)
		img = annotated
	}
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 85, 0))
	www.Check(err)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(jpg)
}

// Classify an uploaded JPEG, PNG, or WebP image.
// Example: curl --data-binary @cat.jpg localhost:8080/api/classify
func (s *Server) httpClassify(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxClassifyBodyBytes))
	if err != nil {
		www.PanicBadRequestf("Failed to read image: %v", err)
	}
	if len(raw) == 0 {
		www.PanicBadRequestf("Empty request body")
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		www.PanicBadRequestf("Failed to decode image: %v", err)
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	result, err := s.Monitor.ClassifyImage(ctx, img)
	www.Check(err)
	www.SendJSON(w, makeResultJSON(result))
}
