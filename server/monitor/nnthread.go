package monitor

import (
	"fmt"
	"time"

	"github.com/cyclopcam/imclass/pkg/nn"
	"github.com/cyclopcam/imclass/pkg/perfstats"
	"github.com/cyclopcam/imclass/server/camera"
)

// Don't log the same failure more often than this
const errorLogInterval = 15 * time.Second

// State of the thread that runs the classifier.
// All of the state inside here is owned by a single thread, so there's no
// need to coordinate access to it.
type nnThread struct {
	lastErrAt time.Time
	config    *nn.ModelConfig
	norm      nn.Normalization
	tensor    []float32
	movingAvg *perfstats.MovingAverage
}

func (t *nnThread) run(m *Monitor) {
	t.config = m.classifier.Config()
	t.norm = t.config.Normalization()
	t.tensor = nn.NewTensor(t.config.Width, t.config.Height)
	t.movingAvg = perfstats.NewMovingAverage(m.options.MovingAvgPeriod)

	for item := range m.queue {
		if item.reply != nil {
			result, err := t.classifyImage(m, item)
			m.numPending.Add(-1)
			item.reply <- classifyReply{result: result, err: err}
		} else {
			t.processFrame(m, item.frame)
			m.numPending.Add(-1)
		}
	}

	close(m.nnThreadStopped)
}

func (t *nnThread) processFrame(m *Monitor, frame *camera.Frame) {
	result, err := t.analyzeFrame(m, frame)
	if err != nil {
		m.setError(err)
		if time.Since(t.lastErrAt) > errorLogInterval {
			m.Log.Errorf("Error classifying frame %v: %v", frame.ID, err)
			t.lastErrAt = time.Now()
		}
		return
	}
	m.numFramesProcessed.Add(1)
	m.publishResult(result)
}

func durationMS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

func (t *nnThread) forward(m *Monitor, start time.Time) ([]nn.ClassPrediction, time.Duration, error) {
	prepDone := time.Now()
	perfstats.UpdateMovingAverage(&m.avgTimeNSPrep, prepDone.Sub(start).Nanoseconds())

	scores, err := m.classifier.Classify(t.tensor)
	forwardDuration := time.Since(prepDone)
	if err != nil {
		return nil, 0, fmt.Errorf("Inference failed: %w", err)
	}
	perfstats.UpdateMovingAverage(&m.avgTimeNSForward, forwardDuration.Nanoseconds())

	return nn.Predictions(t.config, scores, m.options.TopK), forwardDuration, nil
}

// Center crop the frame into the NN tensor, run the classifier, and pick the top K classes
func (t *nnThread) analyzeFrame(m *Monitor, frame *camera.Frame) (*AnalysisResult, error) {
	start := time.Now()
	if err := nn.YUVCenterCropToTensor(frame.Image, frame.RotationDegrees, t.config.Width, t.config.Height, t.norm, t.tensor); err != nil {
		return nil, fmt.Errorf("Preprocessing failed: %w", err)
	}
	top, forwardDuration, err := t.forward(m, start)
	if err != nil {
		return nil, err
	}
	avgForward := t.movingAvg.Push(durationMS(forwardDuration))
	analysisDuration := time.Since(start)

	fps := 0.0
	if analysisDuration > 0 {
		fps = 1000 / durationMS(analysisDuration)
	}
	width, height := nn.RotatedSize(frame.Image.Width, frame.Image.Height, frame.RotationDegrees)

	return &AnalysisResult{
		FrameID:          frame.ID,
		FramePTS:         frame.PTS,
		Source:           frame.Source,
		ImageWidth:       width,
		ImageHeight:      height,
		Top:              top,
		ForwardDuration:  forwardDuration,
		AnalysisDuration: analysisDuration,
		AvgForwardMS:     avgForward,
		FPS:              fps,
		MeanLuma:         frame.Image.MeanLuma(),
		CompletedAt:      time.Now(),
		frame:            frame,
	}, nil
}

// Classify a one-off image. The moving average is reported, but not updated.
func (t *nnThread) classifyImage(m *Monitor, item queueItem) (*AnalysisResult, error) {
	start := time.Now()
	if err := nn.ImageToTensor(item.img, t.config.Width, t.config.Height, t.norm, t.tensor); err != nil {
		return nil, fmt.Errorf("Preprocessing failed: %w", err)
	}
	top, forwardDuration, err := t.forward(m, start)
	if err != nil {
		return nil, err
	}
	analysisDuration := time.Since(start)
	fps := 0.0
	if analysisDuration > 0 {
		fps = 1000 / durationMS(analysisDuration)
	}
	b := item.img.Bounds()
	return &AnalysisResult{
		FramePTS:         start,
		Source:           "upload",
		ImageWidth:       b.Dx(),
		ImageHeight:      b.Dy(),
		Top:              top,
		ForwardDuration:  forwardDuration,
		AnalysisDuration: analysisDuration,
		AvgForwardMS:     t.movingAvg.Average(),
		FPS:              fps,
		CompletedAt:      time.Now(),
	}, nil
}
