package camera

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cyclopcam/imclass/pkg/accel"
	"github.com/cyclopcam/imclass/server/log"
	"github.com/cyclopcam/logs"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Images larger than this are scaled down when loaded
const DirectorySourceMaxDimension = 1280

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// DirectorySource replays the images in a directory as if they were camera frames
type DirectorySource struct {
	Log      logs.Log
	dir      string
	fps      float64
	rotation int
	loop     bool
	files    []string
	frames   []*accel.YUVImage
	nextID   int64

	startLock sync.Mutex
	started   bool
	stop      chan bool
	stopped   chan bool
	closeOnce sync.Once
}

// NewDirectorySource loads all images in dir (sorted by name).
// Frames are emitted at 'fps', tagged with 'rotationDegrees'. If loop is true, the
// images repeat forever, otherwise the source stops after the last image.
func NewDirectorySource(logger logs.Log, dir string, fps float64, rotationDegrees int, loop bool) (*DirectorySource, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("Invalid frame rate %v", fps)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	s := &DirectorySource{
		Log:      log.NewPrefixLogger(logger, "Source:"),
		dir:      dir,
		fps:      fps,
		rotation: rotationDegrees,
		loop:     loop,
		stop:     make(chan bool),
		stopped:  make(chan bool),
	}
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		fn := filepath.Join(dir, e.Name())
		yuv, err := loadImageAsYUV(fn)
		if err != nil {
			s.Log.Warnf("Skipping %v: %v", fn, err)
			continue
		}
		s.files = append(s.files, fn)
		s.frames = append(s.frames, yuv)
	}
	if len(s.frames) == 0 {
		return nil, fmt.Errorf("No usable images found in %v", dir)
	}
	s.Log.Infof("Loaded %v images from %v", len(s.frames), dir)
	return s, nil
}

func loadImageAsYUV(filename string) (*accel.YUVImage, error) {
	img, err := imaging.Open(filename, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() > DirectorySourceMaxDimension || b.Dy() > DirectorySourceMaxDimension {
		img = imaging.Fit(img, DirectorySourceMaxDimension, DirectorySourceMaxDimension, imaging.Linear)
	}
	return accel.YUVFromImage(img)
}

func (s *DirectorySource) Name() string {
	return "dir:" + s.dir
}

// Number of images in the source
func (s *DirectorySource) NumImages() int {
	return len(s.frames)
}

func (s *DirectorySource) Start(sink FrameSink) error {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if s.started {
		return errors.New("DirectorySource already started")
	}
	s.started = true
	go s.run(sink)
	return nil
}

// Done is closed when the source has stopped emitting frames
func (s *DirectorySource) Done() <-chan bool {
	return s.stopped
}

func (s *DirectorySource) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	s.startLock.Lock()
	started := s.started
	s.startLock.Unlock()
	if started {
		<-s.stopped
	}
}

func (s *DirectorySource) run(sink FrameSink) {
	defer close(s.stopped)
	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.fps))
	defer ticker.Stop()
	i := 0
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.nextID++
			sink(&Frame{
				ID:              s.nextID,
				Image:           s.frames[i],
				RotationDegrees: s.rotation,
				PTS:             now,
				Source:          s.Name(),
			})
			i++
			if i == len(s.frames) {
				if !s.loop {
					s.Log.Infof("Finished replaying %v images", len(s.frames))
					return
				}
				i = 0
			}
		}
	}
}
