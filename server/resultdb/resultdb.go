// Package resultdb keeps a history of classification results in a SQL database
package resultdb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/imclass/server/log"
	"github.com/cyclopcam/imclass/server/monitor"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

// ResultDB stores a rolling window of classification results
type ResultDB struct {
	Log        logs.Log
	db         *gorm.DB
	maxRecords int // If zero, then there is no limit
}

// Open or create a result DB.
// For SQLite, the parent directory of the database file is created if necessary.
func Open(logger logs.Log, config dbh.DBConfig, maxRecords int) (*ResultDB, error) {
	logger = log.NewPrefixLogger(logger, "ResultDB:")
	if config.Driver == "" {
		return nil, fmt.Errorf("No database driver specified")
	}
	if config.Driver != "postgres" {
		if err := os.MkdirAll(filepath.Dir(config.Database), 0770); err != nil {
			return nil, fmt.Errorf("Failed to create result DB path '%v': %w", config.Database, err)
		}
	}
	logger.Infof("Opening DB %v", config.LogSafeDescription())
	db, err := dbh.OpenDB(logger, config, Migrations(logger, config.Driver), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open result database %v: %w", config.LogSafeDescription(), err)
	}
	return &ResultDB{
		Log:        logger,
		db:         db,
		maxRecords: maxRecords,
	}, nil
}

func (r *ResultDB) Close() {
	if sqlDB, err := r.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (r *ResultDB) MaxRecords() int {
	return r.maxRecords
}

// MakeResult converts an analysis result into a DB record
func MakeResult(a *monitor.AnalysisResult) *Result {
	t := a.FramePTS
	if t.IsZero() {
		t = a.CompletedAt
	}
	rec := &Result{
		Source:       a.Source,
		FrameID:      a.FrameID,
		Time:         dbh.MakeIntTime(t),
		ForwardMS:    float64(a.ForwardDuration.Nanoseconds()) / 1e6,
		AnalysisMS:   float64(a.AnalysisDuration.Nanoseconds()) / 1e6,
		AvgForwardMS: a.AvgForwardMS,
		MeanLuma:     a.MeanLuma,
		Top:          &dbh.JSONField[TopJSON]{},
	}
	rec.Top.Data.Predictions = a.Top
	if best := a.Best(); best != nil {
		rec.Top1Class = best.Label
		rec.Top1Score = float64(best.Score)
	}
	return rec
}

// Add a result to the history
func (r *ResultDB) Add(a *monitor.AnalysisResult) (*Result, error) {
	rec := MakeResult(a)
	if err := r.db.Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// Recent returns up to limit results, newest first
func (r *ResultDB) Recent(limit int) ([]Result, error) {
	results := []Result{}
	if limit <= 0 {
		return results, nil
	}
	if err := r.db.Order("time DESC, id DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Count returns the number of results in the history
func (r *ResultDB) Count() (int64, error) {
	count := int64(0)
	err := r.db.Model(&Result{}).Count(&count).Error
	return count, err
}

// ClassCounts returns the number of results for each top-1 class since the given time.
// The most frequent classes come first.
func (r *ResultDB) ClassCounts(since time.Time) ([]ClassCount, error) {
	counts := []ClassCount{}
	err := r.db.Raw("SELECT top1_class AS class, COUNT(*) AS count FROM result WHERE time >= ? GROUP BY top1_class ORDER BY count DESC, class",
		dbh.MakeIntTime(since)).Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Purge deletes the oldest results, so that at most maxRecords remain.
// Returns the number of results deleted.
func (r *ResultDB) Purge() (int64, error) {
	if r.maxRecords <= 0 {
		return 0, nil
	}
	// Find the oldest ID that we're keeping
	keep := []int64{}
	if err := r.db.Raw("SELECT id FROM result ORDER BY id DESC LIMIT 1 OFFSET ?", r.maxRecords-1).Scan(&keep).Error; err != nil {
		return 0, err
	}
	if len(keep) == 0 {
		return 0, nil
	}
	res := r.db.Where("id < ?", keep[0]).Delete(&Result{})
	return res.RowsAffected, res.Error
}

// DeleteAll erases the entire history.
// Returns the number of results deleted.
func (r *ResultDB) DeleteAll() (int64, error) {
	res := r.db.Where("1 = 1").Delete(&Result{})
	return res.RowsAffected, res.Error
}
