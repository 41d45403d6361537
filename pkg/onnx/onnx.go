// Package onnx runs image classifiers with the ONNX runtime.
package onnx

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/cyclopcam/imclass/pkg/nn"
	ort "github.com/yalue/onnxruntime_go"
)

var initLock sync.Mutex
var isInitialized bool

// Initialize loads the onnxruntime shared library. This must be called once before
// creating any classifiers. If sharedLibPath is empty, the platform default is used.
func Initialize(sharedLibPath string) error {
	initLock.Lock()
	defer initLock.Unlock()
	if isInitialized {
		return nil
	}
	if sharedLibPath != "" {
		ort.SetSharedLibraryPath(sharedLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("Failed to initialize onnxruntime: %w", err)
	}
	isInitialized = true
	return nil
}

// IsInitialized returns true if Initialize has succeeded
func IsInitialized() bool {
	initLock.Lock()
	defer initLock.Unlock()
	return isInitialized
}

// Shutdown releases the onnxruntime environment. All classifiers must be closed first.
func Shutdown() {
	initLock.Lock()
	defer initLock.Unlock()
	if isInitialized {
		ort.DestroyEnvironment()
		isInitialized = false
	}
}

// Classifier owns a single onnxruntime session, with its input and output tensors.
// It is not safe for concurrent use.
type Classifier struct {
	config  nn.ModelConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// Implemented by *ort.SessionOptions
type threadOptions interface {
	SetIntraOpNumThreads(n int) error
	SetInterOpNumThreads(n int) error
}

func setThreadCounts(options threadOptions, threadingMode nn.ThreadingMode) error {
	intra := runtime.NumCPU()
	if threadingMode == nn.ThreadingModeSingle {
		intra = 1
	}
	if err := options.SetIntraOpNumThreads(intra); err != nil {
		return fmt.Errorf("Error setting intra-op threads to %v: %w", intra, err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return fmt.Errorf("Error setting inter-op threads: %w", err)
	}
	return nil
}

// NewClassifier creates an onnxruntime session for the model in modelFile.
// The model must have a single input of shape [1, 3, Height, Width], and a single
// output of shape [1, len(Classes)].
func NewClassifier(config *nn.ModelConfig, modelFile string, threadingMode nn.ThreadingMode) (*Classifier, error) {
	if !IsInitialized() {
		return nil, errors.New("onnxruntime is not initialized")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(config.Classes) == 0 {
		return nil, fmt.Errorf("Model %v has no classes", modelFile)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("Error creating session options: %w", err)
	}
	defer options.Destroy()

	if err := setThreadCounts(options, threadingMode); err != nil {
		return nil, err
	}

	inputShape := ort.NewShape(1, 3, int64(config.Height), int64(config.Width))
	outputShape := ort.NewShape(1, int64(len(config.Classes)))

	input, err := ort.NewTensor(inputShape, PageAlignedFloats(config.TensorSize()))
	if err != nil {
		return nil, fmt.Errorf("Error creating input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("Error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelFile,
		[]string{config.InputName},
		[]string{config.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("Error creating session for %v: %w", modelFile, err)
	}

	return &Classifier{
		config:  *config,
		session: session,
		input:   input,
		output:  output,
	}, nil
}

func (c *Classifier) Close() {
	if c.session != nil {
		c.session.Destroy()
		c.input.Destroy()
		c.output.Destroy()
		c.session = nil
	}
}

func (c *Classifier) Classify(tensor []float32) ([]float32, error) {
	if c.session == nil {
		return nil, errors.New("Classifier is closed")
	}
	in := c.input.GetData()
	if len(tensor) != len(in) {
		return nil, fmt.Errorf("Input tensor has %v elements, but model expects %v", len(tensor), len(in))
	}
	copy(in, tensor)
	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("Inference failed: %w", err)
	}
	out := c.output.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (c *Classifier) Config() *nn.ModelConfig {
	return &c.config
}
