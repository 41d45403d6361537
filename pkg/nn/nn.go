package nn

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Package nn is a Neural Network interface layer for image classifiers.
// To load a model, use the nnload package.

const DefaultInputName = "input"
const DefaultOutputName = "output"

var ErrEmptyImage = errors.New("Image is empty")
var ErrTensorTooSmall = errors.New("Tensor buffer is too small")

type ThreadingMode int

const (
	ThreadingModeSingle   ThreadingMode = iota // Force the NN library to run inference on a single thread
	ThreadingModeParallel                      // Allow the NN library to run multiple threads while executing a model
)

// Classifier is given a preprocessed image tensor, and returns one score per class
type Classifier interface {
	// Close closes the classifier (you MUST call this when finished, because it's a C++ object underneath)
	Close()

	// Classify runs the model on a planar RGB float tensor of size 3 * Config().Width * Config().Height.
	// The returned slice is owned by the caller.
	Classify(tensor []float32) ([]float32, error)

	// Model Config.
	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the classifier has been created.
	Config() *ModelConfig
}

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Architecture   string    `json:"architecture"`             // eg "mobilenet_v3_small"
	Width          int       `json:"width"`                    // eg 224
	Height         int       `json:"height"`                   // eg 224
	Classes        []string  `json:"classes"`                  // eg ["tench", "goldfish", ...]
	InputName      string    `json:"inputName,omitempty"`      // Name of the input tensor (default "input")
	OutputName     string    `json:"outputName,omitempty"`     // Name of the output tensor (default "output")
	Mean           []float32 `json:"mean,omitempty"`           // Per channel (RGB) mean. Default is torchvision.
	Std            []float32 `json:"std,omitempty"`            // Per channel (RGB) standard deviation. Default is torchvision.
	OutputIsLogits bool      `json:"outputIsLogits,omitempty"` // If true, run softmax over the model output
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, fmt.Errorf("Error parsing model config %v: %w", filename, err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid model config %v: %w", filename, err)
	}
	return config, nil
}

func (c *ModelConfig) applyDefaults() {
	if c.InputName == "" {
		c.InputName = DefaultInputName
	}
	if c.OutputName == "" {
		c.OutputName = DefaultOutputName
	}
}

func (c *ModelConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("Model input size %v x %v is invalid", c.Width, c.Height)
	}
	if len(c.Mean) != 0 && len(c.Mean) != 3 {
		return fmt.Errorf("Mean must have 3 elements, not %v", len(c.Mean))
	}
	if len(c.Std) != 0 && len(c.Std) != 3 {
		return fmt.Errorf("Std must have 3 elements, not %v", len(c.Std))
	}
	for _, s := range c.Std {
		if s == 0 {
			return errors.New("Std may not contain zero")
		}
	}
	return nil
}

// Normalization returns the mean/std that the model was trained with
func (c *ModelConfig) Normalization() Normalization {
	n := TorchvisionNormalization
	if len(c.Mean) == 3 {
		copy(n.Mean[:], c.Mean)
	}
	if len(c.Std) == 3 {
		copy(n.Std[:], c.Std)
	}
	return n
}

// TensorSize is the number of floats in the model's input tensor
func (c *ModelConfig) TensorSize() int {
	return 3 * c.Width * c.Height
}

// ClassName returns the label of class i, or "class i" if the model has no such label
func (c *ModelConfig) ClassName(i int) string {
	if i >= 0 && i < len(c.Classes) {
		return c.Classes[i]
	}
	return fmt.Sprintf("class %v", i)
}

// Load a text file with class names on each line
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	return classes, scanner.Err()
}
