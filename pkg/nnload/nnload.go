package nnload

// Package nnload wraps up our 'nn' interface layer, and has concrete references to our
// neural network implementation (onnxruntime), so that you can just call one function to
// load a model, and not need to know about the implementation details.

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/imclass/pkg/nn"
	"github.com/cyclopcam/imclass/pkg/onnx"
	"github.com/cyclopcam/logs"
)

// DefaultModelBaseURL is where models are fetched from if they are not on disk yet.
// Set it to an empty string to disable downloads.
const DefaultModelBaseURL = "https://models.cyclopcam.org/classify"

// ModelPaths are the files that make up a model on disk
type ModelPaths struct {
	Config  string // eg models/mobilenet_v3_small.json
	Weights string // eg models/mobilenet_v3_small.onnx
	Classes string // eg models/mobilenet_v3_small.classes.txt (optional, if the JSON has no classes)
}

func ModelFiles(modelDir, modelName string) ModelPaths {
	base := filepath.Join(modelDir, modelName)
	return ModelPaths{
		Config:  base + ".json",
		Weights: base + ".onnx",
		Classes: base + ".classes.txt",
	}
}

func downloadFile(srcUrl, targetFile string) error {
	tempFile := targetFile + ".tmp"
	if err := os.MkdirAll(filepath.Dir(targetFile), 0755); err != nil {
		return err
	}
	resp, err := http.DefaultClient.Get(srcUrl)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("HTTP error %v", resp.Status)
	}
	file, err := os.Create(tempFile)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(file, resp.Body)
	if err != nil {
		os.Remove(tempFile)
		return err
	}
	file.Close()
	return os.Rename(tempFile, targetFile)
}

// If the model files are not yet downloaded, then download them now.
// Returns immediately if the files are already downloaded.
func DownloadModel(logs logs.Log, baseUrl, modelDir, modelName string) error {
	paths := ModelFiles(modelDir, modelName)
	for _, diskPath := range []string{paths.Config, paths.Weights} {
		if _, err := os.Stat(diskPath); os.IsNotExist(err) {
			if baseUrl == "" {
				return fmt.Errorf("Model file %v not found, and downloads are disabled", diskPath)
			}
			networkUrl := strings.TrimSuffix(baseUrl, "/") + "/" + filepath.Base(diskPath)
			logs.Infof("Downloading %v to %v", networkUrl, diskPath)
			if err := downloadFile(networkUrl, diskPath); err != nil {
				return fmt.Errorf("Error downloading %v: %w", networkUrl, err)
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}

// LoadModelConfig reads the model's JSON config, and fills in the class names
// from the side-car class file if the JSON doesn't list them.
func LoadModelConfig(modelDir, modelName string) (*nn.ModelConfig, error) {
	paths := ModelFiles(modelDir, modelName)
	config, err := nn.LoadModelConfig(paths.Config)
	if err != nil {
		return nil, err
	}
	if len(config.Classes) == 0 {
		classes, err := nn.LoadClassFile(paths.Classes)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("Model %v has no classes in its config, and %v does not exist", modelName, paths.Classes)
		} else if err != nil {
			return nil, err
		}
		config.Classes = classes
	}
	return config, nil
}

// LoadModel loads a neural network from disk, downloading it first if necessary.
// modelName is the base filename, without the extensions (eg "mobilenet_v3_small").
func LoadModel(logs logs.Log, baseUrl, modelDir, modelName string, threadingMode nn.ThreadingMode) (nn.Classifier, error) {
	if err := DownloadModel(logs, baseUrl, modelDir, modelName); err != nil {
		return nil, fmt.Errorf("Download failed: %w", err)
	}
	config, err := LoadModelConfig(modelDir, modelName)
	if err != nil {
		return nil, err
	}
	paths := ModelFiles(modelDir, modelName)
	model, err := onnx.NewClassifier(config, paths.Weights, threadingMode)
	if err != nil {
		return nil, err
	}
	logs.Infof("Loaded model %v (%v, %v x %v, %v classes)", modelName, config.Architecture, config.Width, config.Height, len(config.Classes))
	return model, nil
}

// LoadRuntime loads the onnxruntime shared library
func LoadRuntime(logs logs.Log, sharedLibPath string) error {
	if onnx.IsInitialized() {
		logs.Warnf("onnxruntime already loaded")
		return nil
	}
	logs.Infof("Loading onnxruntime %v", sharedLibPath)
	return onnx.Initialize(sharedLibPath)
}
