package camera

import (
	"time"

	"github.com/cyclopcam/imclass/pkg/accel"
)

// Frame is a single image from a capture source.
// Frames are shared between consumers, so the image must be treated as read-only.
type Frame struct {
	ID              int64           // Incrementing ID, unique within a source
	Image           *accel.YUVImage // YUV420p image, exactly as captured
	RotationDegrees int             // Clockwise rotation that makes the image upright (0, 90, 180, 270)
	PTS             time.Time       // Capture time
	Source          string          // Name of the source that produced the frame
}

// FrameSink receives frames from a source. It must not block.
type FrameSink func(frame *Frame)

// FrameSource produces frames, and delivers them to a sink on its own goroutine
type FrameSource interface {
	// Name is a human readable description of the source
	Name() string

	// Start begins delivering frames to sink. Start may only be called once.
	Start(sink FrameSink) error

	// Close stops the source. After Close returns, no more frames are delivered.
	Close()
}
