package monitor

import (
	"math"
	"time"

	"github.com/cyclopcam/imclass/server/camera"
)

// Stats is a snapshot of the monitor's counters
type Stats struct {
	FramesIn        int64   `json:"framesIn"`
	FramesProcessed int64   `json:"framesProcessed"`
	FramesDropped   int64   `json:"framesDropped"`
	Errors          int64   `json:"errors"`
	AvgPrepMS       float64 `json:"avgPrepMS"`    // Exponential moving average of preprocessing time
	AvgForwardMS    float64 `json:"avgForwardMS"` // Exponential moving average of model time
	InputFPS        float64 `json:"inputFPS"`     // Rate at which the source is producing frames
	QueueLength     int     `json:"queueLength"`
	QueueCapacity   int     `json:"queueCapacity"`
	ErrorState      string  `json:"errorState,omitempty"`
	ErrorAt         int64   `json:"errorAt,omitempty"` // Unix milliseconds
}

func (m *Monitor) Stats() *Stats {
	s := &Stats{
		FramesIn:        m.numFramesIn.Load(),
		FramesProcessed: m.numFramesProcessed.Load(),
		FramesDropped:   m.numFramesDropped.Load(),
		Errors:          m.numErrors.Load(),
		AvgPrepMS:       float64(m.avgTimeNSPrep.Load()) / 1e6,
		AvgForwardMS:    float64(m.avgTimeNSForward.Load()) / 1e6,
		QueueLength:     len(m.queue),
		QueueCapacity:   cap(m.queue),
	}
	m.lock.Lock()
	if len(m.frameIntervals) != 0 {
		s.InputFPS = camera.EstimateFPS(m.frameIntervals)
	}
	s.ErrorState = m.errorState
	if m.errorState != "" {
		s.ErrorAt = m.errorAt.UnixMilli()
	}
	m.lock.Unlock()
	return s
}

// Log stats at a decreasing rate, so that long running systems don't fill up the logs
func (m *Monitor) logStats() {
	nStats := 0
	lastStats := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.statsStop:
			close(m.statsStopped)
			return
		case <-ticker.C:
		}
		interval := 10 * math.Pow(1.5, float64(nStats))
		interval = max(interval, 5)
		interval = min(interval, 3600)
		if time.Since(lastStats) < time.Duration(interval)*time.Second {
			continue
		}
		nStats++
		s := m.Stats()
		analyzed := 0.0
		if s.FramesIn != 0 {
			analyzed = 100 * float64(s.FramesProcessed) / float64(s.FramesIn)
		}
		m.Log.Infof("%v frames in, %.0f%% analyzed, %v errors. Times per frame: (%.1f ms Prep, %.1f ms NN)",
			s.FramesIn, analyzed, s.Errors, s.AvgPrepMS, s.AvgForwardMS)
		lastStats = time.Now()
	}
}
