package resultdb

import (
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/imclass/pkg/nn"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// A single classification result from the camera stream
// SYNC-RESULTDB-RESULT
type Result struct {
	BaseModel
	Source       string                  `json:"source"`       // Name of the frame source
	FrameID      int64                   `json:"frameID"`      // ID of the frame within the source
	Time         dbh.IntTime             `json:"time"`         // Capture time of the frame
	ForwardMS    float64                 `json:"forwardMS"`    // Time spent inside the model
	AnalysisMS   float64                 `json:"analysisMS"`   // Preprocessing + model + label lookup
	AvgForwardMS float64                 `json:"avgForwardMS"` // Moving average of ForwardMS at the time of the result
	MeanLuma     float64                 `json:"meanLuma"`     // Average brightness of the frame (0..255)
	Top1Class    string                  `json:"top1Class"`    // Label of the best prediction
	Top1Score    float64                 `json:"top1Score"`    // Score of the best prediction
	Top          *dbh.JSONField[TopJSON] `json:"-"`            // All of the top K predictions
}

// SYNC-RESULTDB-TOP
type TopJSON struct {
	Predictions []nn.ClassPrediction `json:"predictions"`
}

// Predictions returns the top K predictions that were stored with the result
func (r *Result) Predictions() []nn.ClassPrediction {
	if r.Top == nil {
		return nil
	}
	return r.Top.Data.Predictions
}

// Number of results for a class, over some time period
type ClassCount struct {
	Class string `json:"class"`
	Count int64  `json:"count"`
}
