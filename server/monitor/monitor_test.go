package monitor

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/cyclopcam/imclass/server/camera"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T, classifier *TestClassifier, options *MonitorOptions) *Monitor {
	m, err := NewMonitor(logs.NewTestingLog(t), classifier, options)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func waitIdle(t *testing.T, m *Monitor) {
	require.True(t, m.WaitIdle(5*time.Second))
}

func TestClassifyFrames(t *testing.T) {
	classifier := NewTestClassifier(16, 16)
	m := newTestMonitor(t, classifier, nil)
	watcher := m.AddWatcher()

	require.Nil(t, m.LastResult())
	img, res := m.LastImage()
	require.Nil(t, img)
	require.Nil(t, res)

	start := time.Now()
	frame := MakeTestFrame(1, start, 64, 48, 240, 20, 20)
	frame.Source = "test"
	require.True(t, m.InjectTestFrame(frame))
	waitIdle(t, m)

	last := m.LastResult()
	require.NotNil(t, last)
	require.Equal(t, int64(1), last.FrameID)
	require.Equal(t, "test", last.Source)
	require.Equal(t, start, last.FramePTS)
	require.Equal(t, 3, len(last.Top))
	require.Equal(t, "red", last.Best().Label)
	require.Equal(t, "red", last.Top[0].Label)
	require.GreaterOrEqual(t, last.Top[0].Score, last.Top[1].Score)
	require.GreaterOrEqual(t, last.Top[1].Score, last.Top[2].Score)
	require.Equal(t, 64, last.ImageWidth)
	require.Equal(t, 48, last.ImageHeight)
	require.GreaterOrEqual(t, int64(last.AnalysisDuration), int64(last.ForwardDuration))
	require.Greater(t, last.FPS, 0.0)
	require.InDelta(t, durationMS(last.ForwardDuration), last.AvgForwardMS, 1e-9)
	require.Greater(t, last.MeanLuma, 16.0)

	select {
	case r := <-watcher:
		require.Same(t, last, r)
	case <-time.After(5 * time.Second):
		t.Fatal("Watcher did not receive result")
	}

	require.True(t, m.InjectTestFrame(MakeTestFrame(2, start.Add(100*time.Millisecond), 64, 48, 10, 10, 240)))
	waitIdle(t, m)
	require.Equal(t, "blue", m.LastResult().Best().Label)

	stats := m.Stats()
	require.Equal(t, int64(2), stats.FramesIn)
	require.Equal(t, int64(2), stats.FramesProcessed)
	require.Equal(t, int64(0), stats.FramesDropped)
	require.Equal(t, int64(0), stats.Errors)
	require.Equal(t, 10.0, stats.InputFPS)
	require.Equal(t, "", stats.ErrorState)
}

func TestTopKOption(t *testing.T) {
	m := newTestMonitor(t, NewTestClassifier(8, 8), &MonitorOptions{TopK: 1, MovingAvgPeriod: 3, QueueSize: 4})
	require.True(t, m.InjectTestFrame(MakeTestFrame(1, time.Now(), 16, 16, 20, 240, 20)))
	waitIdle(t, m)
	require.Equal(t, 1, len(m.LastResult().Top))
	require.Equal(t, "green", m.LastResult().Top[0].Label)

	m = newTestMonitor(t, NewTestClassifier(8, 8), &MonitorOptions{TopK: 10, MovingAvgPeriod: 3, QueueSize: 4})
	require.True(t, m.InjectTestFrame(MakeTestFrame(1, time.Now(), 16, 16, 20, 240, 20)))
	waitIdle(t, m)
	// We can never return more predictions than there are classes
	require.Equal(t, 3, len(m.LastResult().Top))
}

func TestInvalidOptions(t *testing.T) {
	_, err := NewMonitor(logs.NewTestingLog(t), NewTestClassifier(8, 8), &MonitorOptions{TopK: 0, MovingAvgPeriod: 10})
	require.Error(t, err)
	_, err = NewMonitor(logs.NewTestingLog(t), NewTestClassifier(8, 8), &MonitorOptions{TopK: 3, MovingAvgPeriod: 0})
	require.Error(t, err)
}

// The moving average covers the most recent MovingAvgPeriod forward durations
func TestMovingAverageOfForwardTime(t *testing.T) {
	period := 3
	m := newTestMonitor(t, NewTestClassifier(8, 8), &MonitorOptions{TopK: 3, MovingAvgPeriod: period, QueueSize: 2})
	watcher := m.AddWatcher()

	nFrames := 8
	for i := 0; i < nFrames; i++ {
		require.True(t, m.InjectTestFrame(MakeTestFrame(int64(i), time.Now(), 16, 16, 200, 50, 50)))
	}
	waitIdle(t, m)

	results := []*AnalysisResult{}
	for i := 0; i < nFrames; i++ {
		results = append(results, <-watcher)
	}
	for i, r := range results {
		require.Equal(t, int64(i), r.FrameID)
		n := min(i+1, period)
		sum := 0.0
		for j := i + 1 - n; j <= i; j++ {
			sum += durationMS(results[j].ForwardDuration)
		}
		require.InDelta(t, sum/float64(n), r.AvgForwardMS, 1e-6)
	}
}

func TestDropFramesWhenBusy(t *testing.T) {
	classifier := NewTestClassifier(8, 8)
	classifier.Gate = make(chan bool)
	m := newTestMonitor(t, classifier, &MonitorOptions{TopK: 3, MovingAvgPeriod: 10, QueueSize: 1})

	now := time.Now()
	require.True(t, m.InjectFrame(MakeTestFrame(1, now, 16, 16, 200, 0, 0)))
	// Wait for the NN thread to pick up the first frame, and block inside the classifier
	for len(m.queue) != 0 {
		time.Sleep(time.Millisecond)
	}
	require.True(t, m.InjectFrame(MakeTestFrame(2, now, 16, 16, 200, 0, 0)))
	require.False(t, m.InjectFrame(MakeTestFrame(3, now, 16, 16, 200, 0, 0)))
	require.False(t, m.InjectFrame(MakeTestFrame(4, now, 16, 16, 200, 0, 0)))
	require.False(t, m.IsIdle())

	close(classifier.Gate)
	waitIdle(t, m)

	stats := m.Stats()
	require.Equal(t, int64(4), stats.FramesIn)
	require.Equal(t, int64(2), stats.FramesProcessed)
	require.Equal(t, int64(2), stats.FramesDropped)
	require.Equal(t, int64(2), m.LastResult().FrameID)
}

func TestErrorState(t *testing.T) {
	classifier := NewTestClassifier(8, 8)
	m := newTestMonitor(t, classifier, nil)
	watcher := m.AddWatcher()

	classifier.Fail.Store(true)
	require.True(t, m.InjectTestFrame(MakeTestFrame(1, time.Now(), 16, 16, 0, 0, 200)))
	waitIdle(t, m)
	require.Nil(t, m.LastResult())
	require.Contains(t, m.ErrorState(), "Simulated failure")
	stats := m.Stats()
	require.Equal(t, int64(1), stats.Errors)
	require.Equal(t, int64(0), stats.FramesProcessed)
	require.NotEqual(t, int64(0), stats.ErrorAt)
	require.Equal(t, 0, len(watcher))

	classifier.Fail.Store(false)
	require.True(t, m.InjectTestFrame(MakeTestFrame(2, time.Now(), 16, 16, 0, 0, 200)))
	waitIdle(t, m)
	require.Equal(t, "", m.ErrorState())
	require.Equal(t, "blue", m.LastResult().Best().Label)
	require.Equal(t, 1, len(watcher))
}

func TestClassifyImage(t *testing.T) {
	m := newTestMonitor(t, NewTestClassifier(8, 8), nil)
	watcher := m.AddWatcher()

	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.NRGBA{10, 230, 10, 255})
		}
	}
	result, err := m.ClassifyImage(context.Background(), img)
	require.NoError(t, err)
	require.Equal(t, "green", result.Best().Label)
	require.Equal(t, "upload", result.Source)
	require.Nil(t, result.UprightImage())
	require.Equal(t, 40, result.ImageWidth)
	require.Equal(t, 30, result.ImageHeight)

	// One-off images are not part of the camera stream
	require.Nil(t, m.LastResult())
	require.Equal(t, 0, len(watcher))
	require.Equal(t, int64(0), m.Stats().FramesProcessed)
	require.True(t, m.IsIdle())

	_, err = m.ClassifyImage(context.Background(), image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	require.Error(t, err)
}

func TestClassifyImageTimeout(t *testing.T) {
	classifier := NewTestClassifier(8, 8)
	classifier.Gate = make(chan bool)
	m := newTestMonitor(t, classifier, &MonitorOptions{TopK: 3, MovingAvgPeriod: 10, QueueSize: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := m.ClassifyImage(ctx, image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(classifier.Gate)
}

func TestLastImageIsUpright(t *testing.T) {
	m := newTestMonitor(t, NewTestClassifier(8, 8), nil)
	frame := MakeTestFrame(1, time.Now(), 32, 16, 200, 200, 200)
	frame.RotationDegrees = 90
	require.True(t, m.InjectTestFrame(frame))
	waitIdle(t, m)
	img, result := m.LastImage()
	require.NotNil(t, img)
	require.Equal(t, 16, img.Width)
	require.Equal(t, 32, img.Height)
	require.Equal(t, 16, result.ImageWidth)
	require.Equal(t, 32, result.ImageHeight)
}

type fakeSource struct {
	frames  []*camera.Frame
	wg      sync.WaitGroup
	started bool
	closed  bool
}

func (s *fakeSource) Name() string {
	return "fake"
}

func (s *fakeSource) Start(sink camera.FrameSink) error {
	s.started = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, f := range s.frames {
			sink(f)
			time.Sleep(5 * time.Millisecond)
		}
	}()
	return nil
}

func (s *fakeSource) Close() {
	s.wg.Wait()
	s.closed = true
}

func TestAttachSourceAndClose(t *testing.T) {
	classifier := NewTestClassifier(8, 8)
	m, err := NewMonitor(logs.NewTestingLog(t), classifier, nil)
	require.NoError(t, err)
	watcher := m.AddWatcher()

	src := &fakeSource{}
	for i := 0; i < 3; i++ {
		src.frames = append(src.frames, MakeTestFrame(int64(i), time.Now(), 16, 16, 0, 200, 0))
	}
	require.NoError(t, m.AttachSource(src))
	require.True(t, src.started)
	src.wg.Wait()
	waitIdle(t, m)
	require.Equal(t, int64(3), m.Stats().FramesIn)

	m.Close()
	require.True(t, src.closed)
	require.True(t, classifier.Closed.Load())

	// Results that were delivered before Close are still readable, then the channel is closed
	n := 0
	for range watcher {
		n++
	}
	require.Equal(t, int(m.Stats().FramesProcessed), n)

	require.False(t, m.InjectFrame(MakeTestFrame(9, time.Now(), 16, 16, 0, 0, 0)))
	_, err = m.ClassifyImage(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, m.AttachSource(&fakeSource{}), ErrClosed)

	// Closing twice is harmless
	m.Close()
}

func TestAddWatcherAfterClose(t *testing.T) {
	m, err := NewMonitor(logs.NewTestingLog(t), NewTestClassifier(8, 8), nil)
	require.NoError(t, err)
	m.Close()

	watcher := m.AddWatcher()
	select {
	case _, ok := <-watcher:
		require.False(t, ok)
	case <-time.After(time.Second):
		require.Fail(t, "watcher added after Close was not closed")
	}
	m.RemoveWatcher(watcher)
}
