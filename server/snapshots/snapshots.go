// Package snapshots archives JPEG images of frames that were classified with high confidence
package snapshots

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/imclass/pkg/storage"
	"github.com/cyclopcam/imclass/server/log"
	"github.com/cyclopcam/imclass/server/monitor"
	"github.com/cyclopcam/logs"
)

var ErrNoImage = errors.New("Result has no image")

type Options struct {
	Threshold   float32       // Minimum score of the best prediction
	MinInterval time.Duration // Minimum time between snapshots
	Quality     int           // JPEG quality (1..100)
	Classes     []string      // If not empty, then only these classes are archived
}

func DefaultOptions() *Options {
	return &Options{
		Threshold:   0.8,
		MinInterval: 10 * time.Second,
		Quality:     85,
	}
}

// Archiver saves snapshots of interesting frames to storage
type Archiver struct {
	Log     logs.Log
	store   storage.Storage
	options Options

	lock      sync.Mutex
	lastSaved time.Time // Frame time of the most recent snapshot
	numSaved  int

	shutdown chan bool
	closed   chan bool
	stopOnce sync.Once
}

func NewArchiver(logger logs.Log, store storage.Storage, options *Options) *Archiver {
	if options == nil {
		options = DefaultOptions()
	}
	opt := *options
	if opt.Quality < 1 || opt.Quality > 100 {
		opt.Quality = 85
	}
	return &Archiver{
		Log:     log.NewPrefixLogger(logger, "Snapshots:"),
		store:   store,
		options: opt,
	}
}

// SnapshotName returns the storage name of a snapshot: <yyyy-mm-dd>/<unix milliseconds>-<label>.jpg
func SnapshotName(t time.Time, label string) string {
	t = t.UTC()
	return fmt.Sprintf("%v/%v-%v.jpg", t.Format("2006-01-02"), t.UnixMilli(), sanitizeLabel(label))
}

// Keep labels safe for use in a filename
func sanitizeLabel(label string) string {
	b := strings.Builder{}
	for _, r := range strings.ToLower(label) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

func resultTime(r *monitor.AnalysisResult) time.Time {
	if r.FramePTS.IsZero() {
		return r.CompletedAt
	}
	return r.FramePTS
}

// ShouldSave returns true if the result passes the threshold, class filter, and rate limit
func (a *Archiver) ShouldSave(r *monitor.AnalysisResult) bool {
	best := r.Best()
	if best == nil || best.Score < a.options.Threshold {
		return false
	}
	if len(a.options.Classes) != 0 && !slices.Contains(a.options.Classes, best.Label) {
		return false
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.lastSaved.IsZero() || resultTime(r).Sub(a.lastSaved) >= a.options.MinInterval
}

// Consider saves a snapshot of the result's frame if ShouldSave is true.
// Returns the name of the snapshot, or an empty string if it was not saved.
func (a *Archiver) Consider(ctx context.Context, r *monitor.AnalysisResult) (string, error) {
	if !a.ShouldSave(r) {
		return "", nil
	}
	img := r.UprightImage()
	if img == nil {
		return "", ErrNoImage
	}
	name, err := a.Save(ctx, img, resultTime(r), r.Best().Label)
	if err != nil {
		return "", err
	}
	return name, nil
}

// Save writes img to storage as a JPEG, and resets the rate limit
func (a *Archiver) Save(ctx context.Context, img *cimg.Image, t time.Time, label string) (string, error) {
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, a.options.Quality, 0))
	if err != nil {
		return "", fmt.Errorf("Failed to compress snapshot: %w", err)
	}
	name := SnapshotName(t, label)
	if err := storage.WriteBytes(ctx, a.store, name, jpg); err != nil {
		return "", fmt.Errorf("Failed to write snapshot %v: %w", name, err)
	}
	a.lock.Lock()
	a.lastSaved = t
	a.numSaved++
	a.lock.Unlock()
	a.Log.Infof("Saved %v (%v bytes)", name, len(jpg))
	return name, nil
}

// NumSaved is the number of snapshots written since the archiver was created
func (a *Archiver) NumSaved() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.numSaved
}

// List returns the names of snapshots. If day is not empty (eg "2024-03-01"), then
// only snapshots from that day are returned.
func (a *Archiver) List(ctx context.Context, day string) ([]string, error) {
	prefix := ""
	if day != "" {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return nil, fmt.Errorf("Invalid day '%v'. Expected yyyy-mm-dd", day)
		}
		prefix = day + "/"
	}
	return a.store.List(ctx, prefix)
}

// Read returns the JPEG bytes of a snapshot
func (a *Archiver) Read(ctx context.Context, name string) ([]byte, error) {
	return storage.ReadFile(ctx, a.store, name)
}

// Start consuming results from a monitor watcher channel.
// The archiver stops when results is closed, or Stop is called.
func (a *Archiver) Start(results <-chan *monitor.AnalysisResult) {
	a.shutdown = make(chan bool)
	a.closed = make(chan bool)
	go a.run(results)
}

// Stop the archiver, and wait for it to exit
func (a *Archiver) Stop() {
	if a.shutdown == nil {
		return
	}
	a.stopOnce.Do(func() {
		close(a.shutdown)
	})
	<-a.closed
}

func (a *Archiver) run(results <-chan *monitor.AnalysisResult) {
	lastErrAt := time.Time{}
	keepRunning := true
	for keepRunning {
		select {
		case <-a.shutdown:
			keepRunning = false
		case r, ok := <-results:
			if !ok {
				keepRunning = false
				break
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_, err := a.Consider(ctx, r)
			cancel()
			if err != nil && time.Since(lastErrAt) > 15*time.Second {
				a.Log.Errorf("%v", err)
				lastErrAt = time.Now()
			}
		}
	}
	close(a.closed)
}
