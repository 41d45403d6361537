package monitor

import "github.com/cyclopcam/imclass/pkg/gen"

// SYNC-WATCHER-CHANNEL-SIZE
const WatcherChannelSize = 100

// Register to receive classification results from the camera stream.
// The channel is closed when the monitor is closed. If the monitor is already
// closed, the returned channel is closed too.
func (m *Monitor) AddWatcher() chan *AnalysisResult {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	ch := make(chan *AnalysisResult, WatcherChannelSize)
	if m.watchersClosed {
		close(ch)
		return ch
	}
	m.watchers = append(m.watchers, ch)
	return ch
}

// Unregister from classification results
func (m *Monitor) RemoveWatcher(ch chan *AnalysisResult) {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	if m.watchersClosed {
		return
	}
	for i, w := range m.watchers {
		if w == ch {
			m.watchers = gen.DeleteFromSliceUnordered(m.watchers, i)
			return
		}
	}
	m.Log.Warnf("Monitor.RemoveWatcher failed to find channel")
}

// Send a result to all watchers. A watcher that is falling behind misses results,
// so that a slow consumer can never stall the NN thread.
func (m *Monitor) sendToWatchers(result *AnalysisResult) {
	m.watchersLock.RLock()
	defer m.watchersLock.RUnlock()
	for _, ch := range m.watchers {
		if len(ch) >= cap(ch)*9/10 {
			// This should never happen. But it's nice to know if it does.
			m.Log.Warnf("Watcher channel is falling behind - dropping result")
		} else {
			ch <- result
		}
	}
}
