package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/imclass/pkg/nnload"
	"github.com/cyclopcam/imclass/pkg/pwdhash"
)

const DefaultConfigFile = "imclass.json"

// SYNC-SERVER-PORT
const DefaultHTTPAddr = ":8080"

// Model is the neural network that we run on every frame
type Model struct {
	Name         string `json:"name"`         // eg "mobilenet_v3_small"
	Dir          string `json:"dir"`          // Directory where models are cached
	BaseURL      string `json:"baseURL"`      // Models that are not in Dir are downloaded from here
	OnnxLib      string `json:"onnxLib"`      // Path to libonnxruntime.so
	Parallel     bool   `json:"parallel"`     // Allow onnxruntime to use multiple threads for a single frame
	TopK         int    `json:"topK"`         // Number of predictions published per frame
	MovingAvg    int    `json:"movingAvg"`    // Number of frames in the moving average of inference time
	QueueSize    int    `json:"queueSize"`    // Frames waiting for the classifier. Further frames are dropped.
	ClassifyRate int    `json:"classifyRate"` // Maximum requests per second to /api/classify, per IP
}

// Source is where frames come from. Only a directory of images is supported.
type Source struct {
	Directory string  `json:"directory"` // Images in this directory are replayed as a camera stream
	FPS       float64 `json:"fps"`       // Replay frame rate
	Rotation  int     `json:"rotation"`  // Clockwise rotation (0, 90, 180, 270) that makes the frames upright
	Loop      bool    `json:"loop"`      // Start again after the last image
}

// History is the database of classification results
type History struct {
	Enabled       bool         `json:"enabled"`
	DB            dbh.DBConfig `json:"db"`            // Defaults to sqlite in the data directory
	Every         int          `json:"every"`         // Save one out of every N results
	MaxRecords    int          `json:"maxRecords"`    // Oldest records beyond this are purged
	PurgeInterval int          `json:"purgeInterval"` // Seconds between purges
}

// One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')
type StorageConfig struct {
	Filesystem *StorageConfigFS  `json:"filesystem"`
	GCS        *StorageConfigGCS `json:"gcs"`
}

type StorageConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type StorageConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
	Public bool   `json:"public"` // Whether the bucket is public
}

// Snapshots are JPEG images of frames that were classified with high confidence.
// Snapshots are disabled when Storage is nil.
type Snapshots struct {
	Storage     *StorageConfig `json:"storage"`
	Threshold   float32        `json:"threshold"`   // Minimum score of the best prediction
	MinInterval int            `json:"minInterval"` // Minimum seconds between snapshots
	Quality     int            `json:"quality"`     // JPEG quality
	Classes     []string       `json:"classes"`     // If not empty, only these classes are archived
}

type Config struct {
	DataDir           string    `json:"dataDir"`           // Default location of the models, history database, and snapshots
	HTTP              string    `json:"http"`              // eg ":8080"
	HTTPSDomain       string    `json:"httpsDomain"`       // If not empty, serve HTTPS with a Let's Encrypt certificate for this domain
	CertDir           string    `json:"certDir"`           // certmagic storage
	AdminPasswordHash string    `json:"adminPasswordHash"` // Output of cmd/pwdhash. Admin API is disabled when empty.
	HotReloadWWW      bool      `json:"hotReloadWWW"`      // Serve the status page from disk instead of the embedded copy
	Model             Model     `json:"model"`
	Source            Source    `json:"source"`
	History           History   `json:"history"`
	Snapshots         Snapshots `json:"snapshots"`
}

// DefaultConfig returns a config that runs with no config file.
// dataDir is the root of everything that we write to disk.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir: dataDir,
		HTTP:    DefaultHTTPAddr,
		CertDir: filepath.Join(dataDir, "certmagic"),
		Model: Model{
			Name:         "mobilenet_v3_small",
			Dir:          filepath.Join(dataDir, "models"),
			BaseURL:      nnload.DefaultModelBaseURL,
			TopK:         3,
			MovingAvg:    10,
			QueueSize:    2,
			ClassifyRate: 10,
		},
		Source: Source{
			FPS:  5,
			Loop: true,
		},
		History: History{
			Enabled:       true,
			DB:            dbh.MakeSqliteConfig(filepath.Join(dataDir, "history.sqlite")),
			Every:         1,
			MaxRecords:    100000,
			PurgeInterval: 600,
		},
		Snapshots: Snapshots{
			Threshold:   0.8,
			MinInterval: 10,
			Quality:     85,
		},
	}
}

// DefaultDataDir is $HOME/imclass, or /var/lib/imclass if there is no home directory
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return "/var/lib/imclass"
	}
	return filepath.Join(home, "imclass")
}

// LoadConfig reads a JSON config file. Fields that are missing from the file keep their default values.
// If filename is empty, then DefaultConfigFile is read if it exists, otherwise the defaults are returned.
func LoadConfig(filename string) (*Config, error) {
	optional := false
	if filename == "" {
		filename = DefaultConfigFile
		optional = true
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(DefaultDataDir()), nil
		}
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	return ParseConfig(raw)
}

// ParseConfig decodes JSON on top of the defaults
func ParseConfig(raw []byte) (*Config, error) {
	// The data directory determines the other defaults, so it is decoded first
	probe := struct {
		DataDir string `json:"dataDir"`
	}{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("Error decoding config JSON: %w", err)
	}
	dataDir := probe.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	cfg := DefaultConfig(dataDir)
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error decoding config JSON: %w", err)
	}
	return cfg, nil
}

// MinSnapshotInterval is Snapshots.MinInterval as a Duration
func (c *Config) MinSnapshotInterval() time.Duration {
	return time.Duration(c.Snapshots.MinInterval) * time.Second
}

// HistoryPurgeInterval is History.PurgeInterval as a Duration
func (c *Config) HistoryPurgeInterval() time.Duration {
	return time.Duration(c.History.PurgeInterval) * time.Second
}

// Validate returns the first problem found in the config
func (c *Config) Validate() error {
	if c.Model.Name == "" {
		return errors.New("model.name may not be empty")
	}
	if c.Model.Dir == "" {
		return errors.New("model.dir may not be empty")
	}
	if c.Model.TopK < 1 {
		return fmt.Errorf("model.topK must be at least 1 (not %v)", c.Model.TopK)
	}
	if c.Model.MovingAvg < 1 {
		return fmt.Errorf("model.movingAvg must be at least 1 (not %v)", c.Model.MovingAvg)
	}
	if c.Model.QueueSize < 1 {
		return fmt.Errorf("model.queueSize must be at least 1 (not %v)", c.Model.QueueSize)
	}
	if c.Model.ClassifyRate < 1 {
		return fmt.Errorf("model.classifyRate must be at least 1 (not %v)", c.Model.ClassifyRate)
	}
	if c.Source.Directory != "" {
		if c.Source.FPS <= 0 {
			return fmt.Errorf("source.fps must be positive (not %v)", c.Source.FPS)
		}
		switch c.Source.Rotation {
		case 0, 90, 180, 270:
		default:
			return fmt.Errorf("source.rotation must be 0, 90, 180, or 270 (not %v)", c.Source.Rotation)
		}
	}
	if c.HTTP == "" && c.HTTPSDomain == "" {
		return errors.New("One of http or httpsDomain must be set")
	}
	if c.AdminPasswordHash != "" && !pwdhash.IsValidHashBase64(c.AdminPasswordHash) {
		return errors.New("adminPasswordHash is not valid. Use the pwdhash tool to create it.")
	}
	if c.History.Enabled {
		if c.History.DB.Driver != dbh.DriverSqlite && c.History.DB.Driver != dbh.DriverPostgres {
			return fmt.Errorf("history.db.driver must be '%v' or '%v' (not '%v')", dbh.DriverSqlite, dbh.DriverPostgres, c.History.DB.Driver)
		}
		if c.History.DB.Database == "" {
			return errors.New("history.db.database may not be empty")
		}
		if c.History.Every < 1 {
			return fmt.Errorf("history.every must be at least 1 (not %v)", c.History.Every)
		}
		if c.History.MaxRecords < 1 {
			return fmt.Errorf("history.maxRecords must be at least 1 (not %v)", c.History.MaxRecords)
		}
		if c.History.PurgeInterval < 1 {
			return fmt.Errorf("history.purgeInterval must be at least 1 (not %v)", c.History.PurgeInterval)
		}
	}
	if st := c.Snapshots.Storage; st != nil {
		if (st.Filesystem == nil) == (st.GCS == nil) {
			return errors.New("snapshots.storage must specify exactly one of 'filesystem' or 'gcs'")
		}
		if st.Filesystem != nil && st.Filesystem.Root == "" {
			return errors.New("snapshots.storage.filesystem.root may not be empty")
		}
		if st.GCS != nil && st.GCS.Bucket == "" {
			return errors.New("snapshots.storage.gcs.bucket may not be empty")
		}
		if c.Snapshots.Threshold < 0 || c.Snapshots.Threshold > 1 {
			return fmt.Errorf("snapshots.threshold must be between 0 and 1 (not %v)", c.Snapshots.Threshold)
		}
		if c.Snapshots.Quality < 1 || c.Snapshots.Quality > 100 {
			return fmt.Errorf("snapshots.quality must be between 1 and 100 (not %v)", c.Snapshots.Quality)
		}
		if c.Snapshots.MinInterval < 0 {
			return fmt.Errorf("snapshots.minInterval may not be negative (not %v)", c.Snapshots.MinInterval)
		}
	}
	return nil
}
