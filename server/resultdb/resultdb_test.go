package resultdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/imclass/pkg/nn"
	"github.com/cyclopcam/imclass/server/monitor"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, maxRecords int) *ResultDB {
	db, err := Open(logs.NewTestingLog(t), dbh.MakeSqliteConfig(filepath.Join(t.TempDir(), "db", "results.sqlite")), maxRecords)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

var baseTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func makeResult(frameID int64, label string, score float32) *monitor.AnalysisResult {
	return &monitor.AnalysisResult{
		FrameID:  frameID,
		FramePTS: baseTime.Add(time.Duration(frameID) * time.Second),
		Source:   "dir:/tmp",
		Top: []nn.ClassPrediction{
			{Index: 1, Label: label, Score: score},
			{Index: 2, Label: "other", Score: 1 - score},
		},
		ForwardDuration:  12 * time.Millisecond,
		AnalysisDuration: 15 * time.Millisecond,
		AvgForwardMS:     11.5,
		MeanLuma:         100,
	}
}

func TestAddAndRecent(t *testing.T) {
	db := openTestDB(t, 0)

	recent, err := db.Recent(10)
	require.NoError(t, err)
	require.Equal(t, 0, len(recent))

	for i := int64(1); i <= 5; i++ {
		rec, err := db.Add(makeResult(i, "cat", 0.75))
		require.NoError(t, err)
		require.NotEqual(t, int64(0), rec.ID)
	}
	count, err := db.Count()
	require.NoError(t, err)
	require.Equal(t, int64(5), count)

	recent, err = db.Recent(3)
	require.NoError(t, err)
	require.Equal(t, 3, len(recent))
	require.Equal(t, int64(5), recent[0].FrameID)
	require.Equal(t, int64(3), recent[2].FrameID)

	r := recent[0]
	require.Equal(t, "dir:/tmp", r.Source)
	require.Equal(t, baseTime.Add(5*time.Second), r.Time.Get())
	require.InDelta(t, 12.0, r.ForwardMS, 1e-9)
	require.InDelta(t, 15.0, r.AnalysisMS, 1e-9)
	require.InDelta(t, 11.5, r.AvgForwardMS, 1e-9)
	require.InDelta(t, 100.0, r.MeanLuma, 1e-9)
	require.Equal(t, "cat", r.Top1Class)
	require.InDelta(t, 0.75, r.Top1Score, 1e-6)
	preds := r.Predictions()
	require.Equal(t, 2, len(preds))
	require.Equal(t, "other", preds[1].Label)
	require.Equal(t, 2, preds[1].Index)

	recent, err = db.Recent(0)
	require.NoError(t, err)
	require.Equal(t, 0, len(recent))
}

func TestNoPredictions(t *testing.T) {
	db := openTestDB(t, 0)
	a := makeResult(1, "cat", 0.5)
	a.Top = nil
	a.FramePTS = time.Time{}
	a.CompletedAt = baseTime
	_, err := db.Add(a)
	require.NoError(t, err)
	recent, err := db.Recent(1)
	require.NoError(t, err)
	require.Equal(t, "", recent[0].Top1Class)
	require.Equal(t, 0, len(recent[0].Predictions()))
	require.Equal(t, baseTime, recent[0].Time.Get())
}

func TestClassCounts(t *testing.T) {
	db := openTestDB(t, 0)
	labels := []string{"cat", "dog", "cat", "cat", "dog", "bird"}
	for i, label := range labels {
		_, err := db.Add(makeResult(int64(i+1), label, 0.9))
		require.NoError(t, err)
	}
	counts, err := db.ClassCounts(baseTime)
	require.NoError(t, err)
	require.Equal(t, []ClassCount{{"cat", 3}, {"dog", 2}, {"bird", 1}}, counts)

	// Frame 4 onwards: cat, dog, bird
	counts, err = db.ClassCounts(baseTime.Add(4 * time.Second))
	require.NoError(t, err)
	require.Equal(t, []ClassCount{{"bird", 1}, {"cat", 1}, {"dog", 1}}, counts)

	counts, err = db.ClassCounts(baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 0, len(counts))
}

func TestPurgeAndDeleteAll(t *testing.T) {
	db := openTestDB(t, 3)
	n, err := db.Purge()
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	for i := int64(1); i <= 7; i++ {
		_, err := db.Add(makeResult(i, "cat", 0.5))
		require.NoError(t, err)
	}
	n, err = db.Purge()
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	recent, err := db.Recent(10)
	require.NoError(t, err)
	require.Equal(t, 3, len(recent))
	require.Equal(t, int64(7), recent[0].FrameID)
	require.Equal(t, int64(5), recent[2].FrameID)

	// Purging again is a no-op
	n, err = db.Purge()
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	n, err = db.DeleteAll()
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	count, err := db.Count()
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestReopen(t *testing.T) {
	cfg := dbh.MakeSqliteConfig(filepath.Join(t.TempDir(), "results.sqlite"))
	db, err := Open(logs.NewTestingLog(t), cfg, 0)
	require.NoError(t, err)
	_, err = db.Add(makeResult(1, "cat", 0.5))
	require.NoError(t, err)
	db.Close()

	db, err = Open(logs.NewTestingLog(t), cfg, 0)
	require.NoError(t, err)
	defer db.Close()
	count, err := db.Count()
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestWriter(t *testing.T) {
	db := openTestDB(t, 4)
	results := make(chan *monitor.AnalysisResult, 20)
	for i := int64(1); i <= 10; i++ {
		results <- makeResult(i, "cat", 0.5)
	}
	close(results)

	// Save every 2nd result: frames 1, 3, 5, 7, 9
	w := db.StartWriter(results, 2, time.Hour)
	<-w.Done()
	w.Stop()
	require.Equal(t, 5, w.NumWritten())

	// The final purge leaves maxRecords behind
	recent, err := db.Recent(10)
	require.NoError(t, err)
	require.Equal(t, 4, len(recent))
	require.Equal(t, int64(9), recent[0].FrameID)
	require.Equal(t, int64(3), recent[3].FrameID)
}

func TestWriterStop(t *testing.T) {
	db := openTestDB(t, 0)
	results := make(chan *monitor.AnalysisResult)
	w := db.StartWriter(results, 1, 0)
	w.Stop()
	w.Stop()
	require.Equal(t, 0, w.NumWritten())
}
