package nn

import (
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
)

// ImageResult is the outcome of classifying one image file
type ImageResult struct {
	Filename    string            `json:"filename"`
	Predictions []ClassPrediction `json:"predictions"`
	Duration    time.Duration     `json:"duration"` // Time spent inside the model
}

// ClassifyImage preprocesses img into tensor, and returns the top k predictions.
// tensor may be nil, in which case a new one is allocated.
func ClassifyImage(model Classifier, img image.Image, k int, tensor []float32) ([]ClassPrediction, time.Duration, error) {
	config := model.Config()
	if tensor == nil {
		tensor = NewTensor(config.Width, config.Height)
	}
	if err := ImageToTensor(img, config.Width, config.Height, config.Normalization(), tensor); err != nil {
		return nil, 0, err
	}
	start := time.Now()
	scores, err := model.Classify(tensor)
	elapsed := time.Since(start)
	if err != nil {
		return nil, 0, err
	}
	return Predictions(config, scores, k), elapsed, nil
}

// RunInferenceOnImageFiles classifies each of the files, in order.
// EXIF orientation is honoured when loading.
func RunInferenceOnImageFiles(model Classifier, files []string, k int) ([]ImageResult, error) {
	config := model.Config()
	tensor := NewTensor(config.Width, config.Height)
	results := []ImageResult{}
	for _, filename := range files {
		img, err := imaging.Open(filename, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("Error loading %v: %w", filename, err)
		}
		preds, elapsed, err := ClassifyImage(model, img, k, tensor)
		if err != nil {
			return nil, fmt.Errorf("Error classifying %v: %w", filename, err)
		}
		results = append(results, ImageResult{
			Filename:    filename,
			Predictions: preds,
			Duration:    elapsed,
		})
	}
	return results, nil
}
