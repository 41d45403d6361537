package resultdb

import (
	"sync"
	"time"

	"github.com/cyclopcam/imclass/server/monitor"
)

// Writer saves a subset of the results from a monitor watcher channel
type Writer struct {
	db            *ResultDB
	every         int // Save one out of every N results
	purgeInterval time.Duration
	results       <-chan *monitor.AnalysisResult
	shutdown      chan bool // This channel is closed when it's time to shutdown
	closed        chan bool // The write thread closes this channel when it exits
	stopOnce      sync.Once
	numSeen       int
	numWritten    int
}

// StartWriter saves one out of every 'every' results to the DB, and purges old results
// every purgeInterval. The writer exits when results is closed, or Stop is called.
func (r *ResultDB) StartWriter(results <-chan *monitor.AnalysisResult, every int, purgeInterval time.Duration) *Writer {
	w := &Writer{
		db:            r,
		every:         max(every, 1),
		purgeInterval: purgeInterval,
		results:       results,
		shutdown:      make(chan bool),
		closed:        make(chan bool),
	}
	go w.writeThread()
	return w
}

// Stop the writer, and wait for it to exit
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		close(w.shutdown)
	})
	<-w.closed
}

// Done is closed when the writer has exited
func (w *Writer) Done() <-chan bool {
	return w.closed
}

func (w *Writer) writeThread() {
	log := w.db.Log
	log.Infof("Write thread starting")
	var purgeTick <-chan time.Time
	if w.purgeInterval > 0 {
		ticker := time.NewTicker(w.purgeInterval)
		defer ticker.Stop()
		purgeTick = ticker.C
	}
	lastErrAt := time.Time{}
	keepRunning := true
	for keepRunning {
		select {
		case <-w.shutdown:
			keepRunning = false
		case result, ok := <-w.results:
			if !ok {
				keepRunning = false
				break
			}
			w.numSeen++
			if (w.numSeen-1)%w.every != 0 {
				continue
			}
			if _, err := w.db.Add(result); err != nil {
				if time.Since(lastErrAt) > 15*time.Second {
					log.Errorf("Failed to save result: %v", err)
					lastErrAt = time.Now()
				}
			} else {
				w.numWritten++
			}
		case <-purgeTick:
			w.purge()
		}
	}
	w.purge()
	log.Infof("Write thread exiting, after saving %v of %v results", w.numWritten, w.numSeen)
	close(w.closed)
}

func (w *Writer) purge() {
	n, err := w.db.Purge()
	if err != nil {
		w.db.Log.Errorf("Failed to purge old results: %v", err)
	} else if n != 0 {
		w.db.Log.Infof("Purged %v old results", n)
	}
}

// NumWritten is the number of results saved. Only valid after the writer has exited.
func (w *Writer) NumWritten() int {
	return w.numWritten
}
