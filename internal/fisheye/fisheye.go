// Package fisheye models the forward projection of a circular fisheye
// lens: mapping 3D viewing directions to pixel coordinates inside the
// lens's circular image, and testing directions against the lens's field
// of view.
package fisheye

import (
	"fmt"
	"math"
)

// Projection selects the radial mapping r = f(theta) used by the lens.
type Projection string

const (
	// Equidistant maps angle linearly to radius: r = k * theta.
	Equidistant Projection = "equidistant"
	// Equisolid maps r = k * sin(theta/2), the model most consumer
	// 360 cameras (including the Theta series) are closest to.
	Equisolid Projection = "equisolid"
)

// Valid reports whether p names a supported projection model.
func (p Projection) Valid() bool {
	return p == Equidistant || p == Equisolid
}

// Direction is a unit vector in the rig frame. X points right, Y down
// (matching image row order), Z through the front lens.
type Direction struct {
	X, Y, Z float64
}

// Dot returns the scalar product of two directions.
func (d Direction) Dot(o Direction) float64 {
	return d.X*o.X + d.Y*o.Y + d.Z*o.Z
}

// LensConfig describes one fisheye lens. Coordinates are relative to the
// lens's own sub-image, not the full dual-fisheye frame. A config is
// built once at start-up and never mutated.
type LensConfig struct {
	// CenterX, CenterY locate the optical center within the sub-image.
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	// Radius is the image-circle radius in pixels; r spans [0, Radius]
	// as theta spans [0, FOV/2].
	Radius float64 `json:"radius"`
	// FOV is the full field of view in radians (>pi for lenses that see
	// behind their own image plane, as on dual-fisheye rigs).
	FOV float64 `json:"fov"`
	// Yaw is the longitude of the optical axis in radians: 0 for the
	// front lens, pi for the rear one.
	Yaw float64 `json:"yaw"`
	// Projection selects the radial model.
	Projection Projection `json:"projection"`
}

// Validate checks the config against the constraints the mapper relies on.
func (c LensConfig) Validate() error {
	if c.Radius <= 0 {
		return fmt.Errorf("lens radius must be positive, got %v", c.Radius)
	}
	if c.FOV <= 0 || c.FOV > 2*math.Pi {
		return fmt.Errorf("lens FOV must be in (0, 2pi], got %v", c.FOV)
	}
	if !c.Projection.Valid() {
		return fmt.Errorf("unknown projection model %q", c.Projection)
	}
	return nil
}

// Lens is a LensConfig with its derived axis vectors, ready to project.
type Lens struct {
	cfg LensConfig

	axis  Direction // optical axis
	right Direction // image u axis in the rig frame
	down  Direction // image v axis in the rig frame
}

// NewLens validates cfg and precomputes the lens basis.
func NewLens(cfg LensConfig) (*Lens, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sinYaw, cosYaw := math.Sincos(cfg.Yaw)
	return &Lens{
		cfg:  cfg,
		axis: Direction{X: sinYaw, Z: cosYaw},
		// The right vector rotates with the axis so that each lens image
		// reads correctly as seen from inside the sphere: the rear lens
		// is mirrored horizontally relative to the front one.
		right: Direction{X: cosYaw, Z: -sinYaw},
		down:  Direction{Y: 1},
	}, nil
}

// Config returns the lens configuration.
func (l *Lens) Config() LensConfig { return l.cfg }

// Theta returns the angle between d and the optical axis.
func (l *Lens) Theta(d Direction) float64 {
	dot := d.Dot(l.axis)
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return math.Acos(dot)
}

// fovEpsilon absorbs acos rounding so a direction constructed exactly
// on the FOV edge still classifies as inside.
const fovEpsilon = 1e-9

// Contains reports whether d lies within the lens's field-of-view cone.
// The boundary is inclusive so that adjacent lenses never leave a gap at
// the seam.
func (l *Lens) Contains(d Direction) bool {
	return l.Theta(d) <= l.cfg.FOV/2+fovEpsilon
}

// Project maps a direction to sub-image pixel coordinates. It returns
// the coordinates, the axial angle theta, and whether the direction is
// inside the field of view. Coordinates are still returned for slightly
// out-of-FOV directions so callers can clamp at the circle edge.
func (l *Lens) Project(d Direction) (u, v, theta float64, inside bool) {
	theta = l.Theta(d)
	inside = theta <= l.cfg.FOV/2+fovEpsilon

	// Decompose d into image-plane components.
	pu := d.Dot(l.right)
	pv := d.Dot(l.down)
	norm := math.Hypot(pu, pv)
	if norm == 0 {
		// On the optical axis; any azimuth maps to the center.
		return l.cfg.CenterX, l.cfg.CenterY, theta, inside
	}

	r := l.radiusFor(theta)
	u = l.cfg.CenterX + r*pu/norm
	v = l.cfg.CenterY + r*pv/norm
	return u, v, theta, inside
}

// radiusFor evaluates the radial model, scaled so the FOV edge lands on
// the image-circle radius.
func (l *Lens) radiusFor(theta float64) float64 {
	half := l.cfg.FOV / 2
	switch l.cfg.Projection {
	case Equisolid:
		return l.cfg.Radius * math.Sin(theta/2) / math.Sin(half/2)
	default: // Equidistant
		return l.cfg.Radius * theta / half
	}
}

// DirectionAt converts equirectangular pixel coordinates to a viewing
// direction using the inverse of the standard equirectangular projection:
// longitude = x/width*2pi - pi, latitude = y/height*pi - pi/2.
func DirectionAt(x, y, width, height int) Direction {
	lon := float64(x)/float64(width)*2*math.Pi - math.Pi
	lat := float64(y)/float64(height)*math.Pi - math.Pi/2
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	return Direction{
		X: cosLat * sinLon,
		Y: sinLat,
		Z: cosLat * cosLon,
	}
}
