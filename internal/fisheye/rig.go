package fisheye

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Rig is the fixed set of lenses covering the sphere, in sub-image order
// (left to right within the dual-fisheye frame).
type Rig struct {
	Lenses []*Lens
	// InputWidth, InputHeight are the expected source frame dimensions.
	InputWidth  int
	InputHeight int
}

// SubWidth returns the width of each lens sub-image.
func (r *Rig) SubWidth() int {
	return r.InputWidth / len(r.Lenses)
}

// Theta S live-mode constants. The camera emits a 1280x720 frame holding
// two 640x720 sub-images whose circles slightly overhang a hemisphere.
const (
	thetaSWidth  = 1280
	thetaSHeight = 720
	thetaSRadius = 283.0
	thetaSFOVDeg = 190.0
)

// ThetaS returns the rig for a Ricoh Theta S in dual-fisheye live mode.
func ThetaS() *Rig {
	fov := thetaSFOVDeg * math.Pi / 180
	front, err := NewLens(LensConfig{
		CenterX:    thetaSWidth / 4,
		CenterY:    thetaSHeight / 2,
		Radius:     thetaSRadius,
		FOV:        fov,
		Yaw:        0,
		Projection: Equisolid,
	})
	if err != nil {
		panic("invalid built-in front lens config: " + err.Error())
	}
	rear, err := NewLens(LensConfig{
		CenterX:    thetaSWidth / 4,
		CenterY:    thetaSHeight / 2,
		Radius:     thetaSRadius,
		FOV:        fov,
		Yaw:        math.Pi,
		Projection: Equisolid,
	})
	if err != nil {
		panic("invalid built-in rear lens config: " + err.Error())
	}
	return &Rig{
		Lenses:      []*Lens{front, rear},
		InputWidth:  thetaSWidth,
		InputHeight: thetaSHeight,
	}
}

// RigTuning overrides individual rig constants from a JSON file. Fields
// omitted from the file keep their built-in values, so partial configs
// are safe.
type RigTuning struct {
	FOVDegrees *float64 `json:"fov_degrees,omitempty"`
	Radius     *float64 `json:"radius,omitempty"`
	CenterX    *float64 `json:"center_x,omitempty"`
	CenterY    *float64 `json:"center_y,omitempty"`
	Projection *string  `json:"projection,omitempty"`
}

// LoadRigTuning loads a RigTuning from a JSON file.
func LoadRigTuning(path string) (*RigTuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("rig tuning file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rig tuning file: %w", err)
	}
	var t RigTuning
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse rig tuning file: %w", err)
	}
	return &t, nil
}

// Apply rebuilds the rig's lenses with the tuning overrides applied
// symmetrically to every lens.
func (t *RigTuning) Apply(r *Rig) error {
	for i, lens := range r.Lenses {
		cfg := lens.Config()
		if t.FOVDegrees != nil {
			cfg.FOV = *t.FOVDegrees * math.Pi / 180
		}
		if t.Radius != nil {
			cfg.Radius = *t.Radius
		}
		if t.CenterX != nil {
			cfg.CenterX = *t.CenterX
		}
		if t.CenterY != nil {
			cfg.CenterY = *t.CenterY
		}
		if t.Projection != nil {
			cfg.Projection = Projection(*t.Projection)
		}
		rebuilt, err := NewLens(cfg)
		if err != nil {
			return fmt.Errorf("lens %d: %w", i, err)
		}
		r.Lenses[i] = rebuilt
	}
	return nil
}
