// Package recorder drives the capture pipeline: it pulls frames from a
// source, optionally converts and previews them, writes them to a sink,
// and paces the loop to the configured frame rate.
package recorder

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfigInvalid marks configuration failures: bad frame rate,
// unsupported profile, or a mid-run source dimension change. Always
// fatal, never retried.
var ErrConfigInvalid = errors.New("invalid configuration")

// Profile is the requested pixel channel depth.
type Profile string

const (
	ProfileColor Profile = "color"
	ProfileGray  Profile = "gray"
)

// ParseProfile normalises a profile argument. "grey" is accepted as a
// synonym for "gray"; anything else fails fast.
func ParseProfile(s string) (Profile, error) {
	switch s {
	case "color":
		return ProfileColor, nil
	case "gray", "grey":
		return ProfileGray, nil
	default:
		return "", fmt.Errorf("%w: profile must be color, gray or grey, got %q", ErrConfigInvalid, s)
	}
}

// Config holds the per-run capture parameters. Built once at start-up
// and immutable thereafter.
type Config struct {
	// Source is the capture device index or stream identifier.
	Source string

	// OutputPath is the target video file.
	OutputPath string

	// Framerate is the requested frames per second.
	Framerate float64

	// Profile is the requested channel depth.
	Profile Profile

	// Preview enables the live display.
	Preview bool

	// Convert enables dual-fisheye to equirectangular re-projection.
	Convert bool
}

// Validate checks the config at start-up.
func (c Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("%w: capture source is required", ErrConfigInvalid)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("%w: output path is required", ErrConfigInvalid)
	}
	if c.Framerate <= 0 {
		return fmt.Errorf("%w: framerate must be > 0, got %v", ErrConfigInvalid, c.Framerate)
	}
	if c.Profile != ProfileColor && c.Profile != ProfileGray {
		return fmt.Errorf("%w: unsupported profile %q", ErrConfigInvalid, c.Profile)
	}
	return nil
}

// Interval returns the target time between frames, the reciprocal of
// the frame rate.
func (c Config) Interval() time.Duration {
	return time.Duration(float64(time.Second) / c.Framerate)
}
