package nn

// ClassPrediction is a ClassScore with its human readable label
type ClassPrediction struct {
	Index int     `json:"index"`
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// Predictions returns the top k predictions from a model's output.
// If the model emits logits, they are converted to probabilities first.
func Predictions(config *ModelConfig, scores []float32, k int) []ClassPrediction {
	if config.OutputIsLogits {
		scores = Softmax(scores)
	}
	top := TopK(scores, k)
	preds := make([]ClassPrediction, len(top))
	for i, t := range top {
		preds[i] = ClassPrediction{
			Index: t.Index,
			Label: config.ClassName(t.Index),
			Score: t.Score,
		}
	}
	return preds
}
