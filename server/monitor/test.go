package monitor

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/imclass/pkg/accel"
	"github.com/cyclopcam/imclass/pkg/nn"
	"github.com/cyclopcam/imclass/server/camera"
)

// Functions used by unit tests

// Make a frame of uniform color
func MakeTestFrame(id int64, pts time.Time, width, height int, r, g, b uint8) *camera.Frame {
	img, err := accel.NewYUVImage(width, height)
	if err != nil {
		panic(err)
	}
	y, u, v := accel.RGBToYUV(r, g, b)
	for i := range img.Y {
		img.Y[i] = y
	}
	for i := range img.U {
		img.U[i] = u
		img.V[i] = v
	}
	return &camera.Frame{
		ID:    id,
		Image: img,
		PTS:   pts,
	}
}

// Inject a frame for NN analysis, waiting for space in the queue.
// Unlike InjectFrame, the frame is only dropped if the monitor is closed.
func (m *Monitor) InjectTestFrame(frame *camera.Frame) bool {
	for {
		if m.InjectFrame(frame) {
			return true
		}
		m.numFramesIn.Add(-1)
		m.numFramesDropped.Add(-1)
		m.queueLock.RLock()
		closed := m.closed
		m.queueLock.RUnlock()
		if closed {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// TestClassifier scores the classes "red", "green" and "blue" by the mean value
// of the corresponding tensor plane.
type TestClassifier struct {
	Gate   chan bool   // If not nil, Classify waits for a value (or close) on Gate
	Fail   atomic.Bool // If true, Classify returns an error
	Closed atomic.Bool

	config nn.ModelConfig
}

func NewTestClassifier(width, height int) *TestClassifier {
	return &TestClassifier{
		config: nn.ModelConfig{
			Architecture: "test",
			Width:        width,
			Height:       height,
			Classes:      []string{"red", "green", "blue"},
			Mean:         []float32{0, 0, 0},
			Std:          []float32{1, 1, 1},
		},
	}
}

func (c *TestClassifier) Close() {
	c.Closed.Store(true)
}

func (c *TestClassifier) Config() *nn.ModelConfig {
	return &c.config
}

func (c *TestClassifier) Classify(tensor []float32) ([]float32, error) {
	if c.Gate != nil {
		<-c.Gate
	}
	if c.Fail.Load() {
		return nil, errors.New("Simulated failure")
	}
	if len(tensor) != c.config.TensorSize() {
		return nil, nn.ErrTensorTooSmall
	}
	plane := c.config.Width * c.config.Height
	scores := make([]float32, 3)
	for ch := 0; ch < 3; ch++ {
		for _, v := range tensor[ch*plane : (ch+1)*plane] {
			scores[ch] += v
		}
		scores[ch] /= float32(plane)
	}
	return scores, nil
}
