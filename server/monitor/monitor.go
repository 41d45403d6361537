package monitor

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/imclass/pkg/accel"
	"github.com/cyclopcam/imclass/pkg/nn"
	"github.com/cyclopcam/imclass/server/camera"
	"github.com/cyclopcam/imclass/server/log"
	"github.com/cyclopcam/logs"
)

var ErrClosed = errors.New("Monitor is closed")

// Number of frame intervals that we keep for estimating the input frame rate
const maxFrameIntervals = 30

// Monitor runs a classifier on frames from a camera, and publishes the results.
// Frames are injected by a producer, and consumed by a single NN thread.
// When the NN thread falls behind, new frames are dropped.
type Monitor struct {
	Log logs.Log

	classifier nn.Classifier
	options    MonitorOptions

	queueLock sync.RWMutex // Guards closed, and sending on queue
	closed    bool
	queue     chan queueItem

	numPending      atomic.Int64 // Items that have been queued, but not yet fully processed
	nnThreadStopped chan bool

	statsStop    chan bool
	statsStopped chan bool

	sourcesLock sync.Mutex
	sources     []camera.FrameSource

	numFramesIn        atomic.Int64
	numFramesProcessed atomic.Int64
	numFramesDropped   atomic.Int64
	numErrors          atomic.Int64
	avgTimeNSPrep      atomic.Int64
	avgTimeNSForward   atomic.Int64

	lock           sync.Mutex      // Guards everything below
	lastResult     *AnalysisResult // Most recent result from the camera stream
	lastFramePTS   time.Time       // Used to compute frameIntervals
	frameIntervals []time.Duration // Most recent input frame intervals
	errorState     string          // Non-empty while the most recent frame failed
	errorAt        time.Time       // Time when errorState was set

	watchersLock   sync.RWMutex
	watchers       []chan *AnalysisResult
	watchersClosed bool
}

type MonitorOptions struct {
	TopK            int // Number of predictions to publish for each frame
	MovingAvgPeriod int // Number of forward durations that are averaged
	QueueSize       int // Number of frames that can wait for the NN thread
}

func DefaultMonitorOptions() *MonitorOptions {
	return &MonitorOptions{
		TopK:            3,
		MovingAvgPeriod: 10,
		QueueSize:       2,
	}
}

// AnalysisResult is the outcome of classifying a single frame
type AnalysisResult struct {
	FrameID          int64                `json:"frameID"`
	FramePTS         time.Time            `json:"framePTS"`
	Source           string               `json:"source"`
	ImageWidth       int                  `json:"imageWidth"`  // Upright width of the source image
	ImageHeight      int                  `json:"imageHeight"` // Upright height of the source image
	Top              []nn.ClassPrediction `json:"top"`
	ForwardDuration  time.Duration        `json:"forwardDuration"`  // Time spent inside the model
	AnalysisDuration time.Duration        `json:"analysisDuration"` // Preprocessing + model + label lookup
	AvgForwardMS     float64              `json:"avgForwardMS"`     // Moving average of ForwardDuration, in milliseconds
	FPS              float64              `json:"fps"`              // 1000 / analysis milliseconds
	MeanLuma         float64              `json:"meanLuma"`         // Average brightness of the frame (0..255)
	CompletedAt      time.Time            `json:"completedAt"`

	frame *camera.Frame // Frame that produced this result. Nil for one-off images.
}

// Best returns the highest scoring prediction, or nil if there are none
func (r *AnalysisResult) Best() *nn.ClassPrediction {
	if len(r.Top) == 0 {
		return nil
	}
	return &r.Top[0]
}

// UprightImage returns the frame that produced this result as an RGB image, rotated upright.
// Returns nil for results that did not come from the camera stream.
func (r *AnalysisResult) UprightImage() *cimg.Image {
	if r.frame == nil {
		return nil
	}
	return accel.RotateImage(r.frame.Image.ToCImageRGB(), r.frame.RotationDegrees)
}

// Either frame or img is populated
type queueItem struct {
	frame *camera.Frame
	img   image.Image
	reply chan classifyReply
}

type classifyReply struct {
	result *AnalysisResult
	err    error
}

// NewMonitor takes ownership of classifier, and closes it when the monitor is closed
func NewMonitor(logger logs.Log, classifier nn.Classifier, options *MonitorOptions) (*Monitor, error) {
	if options == nil {
		options = DefaultMonitorOptions()
	}
	opt := *options
	if opt.TopK < 1 {
		return nil, errors.New("TopK must be at least 1")
	}
	if opt.MovingAvgPeriod < 1 {
		return nil, errors.New("MovingAvgPeriod must be at least 1")
	}
	if opt.QueueSize < 1 {
		opt.QueueSize = 1
	}
	m := &Monitor{
		Log:             log.NewPrefixLogger(logger, "Monitor:"),
		classifier:      classifier,
		options:         opt,
		queue:           make(chan queueItem, opt.QueueSize),
		nnThreadStopped: make(chan bool),
		statsStop:       make(chan bool),
		statsStopped:    make(chan bool),
	}
	config := classifier.Config()
	m.Log.Infof("Classifier %v, input %v x %v, %v classes", config.Architecture, config.Width, config.Height, len(config.Classes))

	thread := &nnThread{}
	go thread.run(m)
	go m.logStats()

	return m, nil
}

// Close stops all attached sources, waits for the NN thread to exit, and closes the classifier.
// Watcher channels are closed too.
func (m *Monitor) Close() {
	m.queueLock.Lock()
	if m.closed {
		m.queueLock.Unlock()
		return
	}
	m.closed = true
	m.queueLock.Unlock()

	m.sourcesLock.Lock()
	sources := m.sources
	m.sources = nil
	m.sourcesLock.Unlock()
	for _, src := range sources {
		m.Log.Infof("Closing source %v", src.Name())
		src.Close()
	}

	// No sender can be inside InjectFrame or ClassifyImage while we hold the write lock
	m.queueLock.Lock()
	close(m.queue)
	m.queueLock.Unlock()
	<-m.nnThreadStopped

	close(m.statsStop)
	<-m.statsStopped

	m.watchersLock.Lock()
	for _, ch := range m.watchers {
		close(ch)
	}
	m.watchers = nil
	m.watchersClosed = true
	m.watchersLock.Unlock()

	m.classifier.Close()
	m.Log.Infof("Closed")
}

// Options returns the options that the monitor is running with
func (m *Monitor) Options() MonitorOptions {
	return m.options
}

// ClassifierConfig returns the configuration of the model that we're running
func (m *Monitor) ClassifierConfig() *nn.ModelConfig {
	return m.classifier.Config()
}

// AttachSource starts src, and feeds its frames into the monitor.
// The monitor closes the source when it is closed.
func (m *Monitor) AttachSource(src camera.FrameSource) error {
	m.queueLock.RLock()
	closed := m.closed
	m.queueLock.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := src.Start(func(frame *camera.Frame) { m.InjectFrame(frame) }); err != nil {
		return err
	}
	m.sourcesLock.Lock()
	m.sources = append(m.sources, src)
	m.sourcesLock.Unlock()
	m.Log.Infof("Attached source %v", src.Name())
	return nil
}

// InjectFrame queues a frame for analysis. If the queue is full, or the monitor
// is closed, then the frame is dropped and we return false. InjectFrame never blocks.
func (m *Monitor) InjectFrame(frame *camera.Frame) bool {
	m.numFramesIn.Add(1)
	m.recordFrameArrival(frame.PTS)

	m.queueLock.RLock()
	defer m.queueLock.RUnlock()
	if m.closed {
		m.numFramesDropped.Add(1)
		return false
	}
	m.numPending.Add(1)
	select {
	case m.queue <- queueItem{frame: frame}:
		return true
	default:
		m.numPending.Add(-1)
		m.numFramesDropped.Add(1)
		return false
	}
}

// ClassifyImage runs the classifier on a single image, outside of the camera stream.
// The image waits its turn in the queue, so this may block until ctx expires.
// One-off results are not published to watchers, and do not influence the moving average.
func (m *Monitor) ClassifyImage(ctx context.Context, img image.Image) (*AnalysisResult, error) {
	if img.Bounds().Empty() {
		return nil, nn.ErrEmptyImage
	}
	reply := make(chan classifyReply, 1)

	m.queueLock.RLock()
	if m.closed {
		m.queueLock.RUnlock()
		return nil, ErrClosed
	}
	m.numPending.Add(1)
	select {
	case m.queue <- queueItem{img: img, reply: reply}:
	case <-ctx.Done():
		m.numPending.Add(-1)
		m.queueLock.RUnlock()
		return nil, ctx.Err()
	}
	m.queueLock.RUnlock()

	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LastResult returns the most recent result from the camera stream, or nil
func (m *Monitor) LastResult() *AnalysisResult {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.lastResult
}

// LastImage returns the frame that produced LastResult, as an upright RGB image.
// Returns nil if no frame has been analyzed yet.
func (m *Monitor) LastImage() (*cimg.Image, *AnalysisResult) {
	result := m.LastResult()
	if result == nil {
		return nil, nil
	}
	return result.UprightImage(), result
}

// ErrorState returns the most recent classification error, or an empty string if
// the most recent frame was classified successfully.
func (m *Monitor) ErrorState() string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.errorState
}

// IsIdle returns true if every queued item has been processed
func (m *Monitor) IsIdle() bool {
	return m.numPending.Load() == 0
}

// WaitIdle waits up to timeout for the NN thread to finish all queued work
func (m *Monitor) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.IsIdle() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return m.IsIdle()
}

func (m *Monitor) recordFrameArrival(pts time.Time) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.lastFramePTS.IsZero() && pts.After(m.lastFramePTS) {
		m.frameIntervals = append(m.frameIntervals, pts.Sub(m.lastFramePTS))
		if len(m.frameIntervals) > maxFrameIntervals {
			m.frameIntervals = m.frameIntervals[1:]
		}
	}
	m.lastFramePTS = pts
}

func (m *Monitor) publishResult(result *AnalysisResult) {
	m.lock.Lock()
	m.lastResult = result
	if m.errorState != "" {
		m.Log.Infof("Recovered after error: %v", m.errorState)
	}
	m.errorState = ""
	m.lock.Unlock()

	m.sendToWatchers(result)
}

func (m *Monitor) setError(err error) {
	m.numErrors.Add(1)
	m.lock.Lock()
	m.errorState = err.Error()
	m.errorAt = time.Now()
	m.lock.Unlock()
}
