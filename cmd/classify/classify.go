package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/imclass/pkg/nn"
	"github.com/cyclopcam/imclass/pkg/nnload"
	"github.com/cyclopcam/imclass/pkg/onnx"
	"github.com/cyclopcam/imclass/pkg/perfstats"
	"github.com/cyclopcam/imclass/server/config"
	"github.com/cyclopcam/logs"
)

func check(err error) {
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
}

// Classify image files, and print the top K predictions for each of them.
// Example: classify --model mobilenet_v3_small -i cat.jpg -i dog.png
func main() {
	defaultModelDir := config.DefaultConfig(config.DefaultDataDir()).Model.Dir

	parser := argparse.NewParser("classify", "Classify image files")
	modelName := parser.String("m", "model", &argparse.Options{Help: "Name of the NN model", Default: "mobilenet_v3_small"})
	modelDir := parser.String("", "models", &argparse.Options{Help: "Directory where models are cached", Default: defaultModelDir})
	baseURL := parser.String("", "modelurl", &argparse.Options{Help: "Models are downloaded from here if they're not in the cache", Default: nnload.DefaultModelBaseURL})
	onnxLib := parser.String("", "onnxlib", &argparse.Options{Help: "Path to libonnxruntime.so", Default: ""})
	topK := parser.Int("k", "top", &argparse.Options{Help: "Number of predictions to show", Default: 3})
	asJSON := parser.Flag("", "json", &argparse.Options{Help: "Print results as JSON", Default: false})
	imageFiles := parser.StringList("i", "input", &argparse.Options{Help: "Image file (JPEG, PNG, WebP). May be repeated.", Required: true})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	check(nnload.LoadRuntime(logger, *onnxLib))
	defer onnx.Shutdown()

	model, err := nnload.LoadModel(logger, *baseURL, *modelDir, *modelName, nn.ThreadingModeParallel)
	check(err)
	defer model.Close()

	results, err := nn.RunInferenceOnImageFiles(model, *imageFiles, *topK)
	check(err)

	if *asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		check(encoder.Encode(results))
		return
	}
	// The first inference is usually much slower, so it is left out of the average
	var forward perfstats.TimeAccumulator
	for i, r := range results {
		if i != 0 || len(results) == 1 {
			forward.AddSample(r.Duration)
		}
		fmt.Printf("%v\n", r.Filename)
		fmt.Printf("  %d ms\n", r.Duration.Milliseconds())
		for _, p := range r.Predictions {
			fmt.Printf("  %v : %.2f\n", p.Label, p.Score)
		}
	}
	fmt.Printf("Average inference time: %d ms (%v samples)\n", forward.Average().Milliseconds(), forward.Samples)
}
