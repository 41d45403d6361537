package main

import "github.com/cyclopcam/imclass/server/config"

// Command line values that take precedence over the config file.
// Empty strings, a zero FPS, and a negative rotation leave the config value alone.
type overrides struct {
	ModelName    string
	ModelDir     string
	SourceDir    string
	FPS          float64
	Rotation     int
	HTTP         string
	HTTPSDomain  string
	OnnxLib      string
	HotReloadWWW bool
}

func (o *overrides) apply(cfg *config.Config) {
	if o.ModelName != "" {
		cfg.Model.Name = o.ModelName
	}
	if o.ModelDir != "" {
		cfg.Model.Dir = o.ModelDir
	}
	if o.SourceDir != "" {
		cfg.Source.Directory = o.SourceDir
	}
	if o.FPS != 0 {
		cfg.Source.FPS = o.FPS
	}
	if o.Rotation >= 0 {
		cfg.Source.Rotation = o.Rotation
	}
	if o.HTTP != "" {
		cfg.HTTP = o.HTTP
	}
	if o.HTTPSDomain != "" {
		cfg.HTTPSDomain = o.HTTPSDomain
	}
	if o.OnnxLib != "" {
		cfg.Model.OnnxLib = o.OnnxLib
	}
	if o.HotReloadWWW {
		cfg.HotReloadWWW = true
	}
}
