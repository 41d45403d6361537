package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/imclass/pkg/nn"
	"github.com/cyclopcam/imclass/pkg/nnload"
	"github.com/cyclopcam/imclass/pkg/onnx"
	"github.com/cyclopcam/imclass/server"
	"github.com/cyclopcam/imclass/server/config"
	"github.com/cyclopcam/imclass/server/log"
)

func main() {
	parser := argparse.NewParser("imclass", "Real-time image classification of a camera stream")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file (JSON)", Default: ""})
	modelName := parser.String("", "model", &argparse.Options{Help: "Name of the NN model (overrides config)", Default: ""})
	modelDir := parser.String("", "models", &argparse.Options{Help: "Directory where models are cached (overrides config)", Default: ""})
	sourceDir := parser.String("", "source", &argparse.Options{Help: "Directory of images to replay as the camera stream (overrides config)", Default: ""})
	fps := parser.Float("", "fps", &argparse.Options{Help: "Frame rate of the replayed images (overrides config)", Default: 0.0})
	rotation := parser.Int("", "rotation", &argparse.Options{Help: "Clockwise rotation of the frames: 0, 90, 180, 270 (overrides config)", Default: -1})
	httpAddr := parser.String("", "http", &argparse.Options{Help: "HTTP listen address, eg :8080 (overrides config)", Default: ""})
	httpsDomain := parser.String("", "https-domain", &argparse.Options{Help: "Serve HTTPS for this domain, with a Let's Encrypt certificate (overrides config)", Default: ""})
	onnxLib := parser.String("", "onnxlib", &argparse.Options{Help: "Path to libonnxruntime.so (overrides config)", Default: ""})
	hotReloadWWW := parser.Flag("", "hot", &argparse.Options{Help: "Hot reload the status page instead of embedding it into the binary", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := log.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	flags := overrides{
		ModelName:    *modelName,
		ModelDir:     *modelDir,
		SourceDir:    *sourceDir,
		FPS:          *fps,
		Rotation:     *rotation,
		HTTP:         *httpAddr,
		HTTPSDomain:  *httpsDomain,
		OnnxLib:      *onnxLib,
		HotReloadWWW: *hotReloadWWW,
	}
	flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Errorf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	if err := nnload.LoadRuntime(logger, cfg.Model.OnnxLib); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	defer onnx.Shutdown()

	threading := nn.ThreadingModeSingle
	if cfg.Model.Parallel {
		threading = nn.ThreadingModeParallel
	}
	classifier, err := nnload.LoadModel(logger, cfg.Model.BaseURL, cfg.Model.Dir, cfg.Model.Name, threading)
	if err != nil {
		logger.Errorf("Failed to load model %v: %v", cfg.Model.Name, err)
		os.Exit(1)
	}

	srv, err := server.NewServer(logger, cfg, classifier)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()

	// Tell systemd that we're alive.
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if cfg.HTTPSDomain != "" {
		err = srv.ListenHTTPS(cfg.HTTPSDomain, cfg.CertDir)
	} else {
		err = srv.ListenHTTP(cfg.HTTP)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Listen failed: %v", err)
		srv.Shutdown()
	} else {
		logger.Infof("Listen returned: %v", err)
	}

	<-srv.ShutdownComplete
}
