// Package equirect re-projects dual-fisheye frames onto an
// equirectangular canvas. For every output pixel it resolves a viewing
// direction, finds the lenses that cover it, and samples or blends the
// corresponding source pixels. The per-pixel resolution is precomputed
// once per (rig, output size) pair so the per-frame work is a straight
// table walk.
package equirect

import (
	"fmt"
	"math"

	"github.com/linto-ai/fisheye-recorder/internal/fisheye"
	"github.com/linto-ai/fisheye-recorder/internal/frame"
)

// Sampling selects the interpolation used when reading source pixels.
type Sampling int

const (
	// Bilinear interpolation; required for acceptable visual quality.
	Bilinear Sampling = iota
	// Nearest neighbour; fast-path fallback.
	Nearest
)

// tap is one source read contributing to an output pixel. Coordinates
// are in full-frame space, already clamped to the lens circle.
type tap struct {
	x, y   float32
	weight float32
	lens   int8
}

// pixelPlan resolves one output pixel: zero taps renders the sentinel
// black value, one is a plain sample, two is a seam blend.
type pixelPlan struct {
	taps [2]tap
	n    uint8
}

// Mapper converts dual-fisheye frames to equirectangular panoramas. It
// is a pure function of the rig, output dimensions and sampling mode:
// identical source frames always produce byte-identical panoramas.
type Mapper struct {
	rig      *fisheye.Rig
	width    int
	height   int
	sampling Sampling
	plan     []pixelPlan
}

// NewMapper precomputes the resolution plan for the given rig and output
// dimensions.
func NewMapper(rig *fisheye.Rig, width, height int, sampling Sampling) (*Mapper, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid output dimensions %dx%d", width, height)
	}
	if len(rig.Lenses) == 0 {
		return nil, fmt.Errorf("rig has no lenses")
	}
	if len(rig.Lenses) > 127 {
		return nil, fmt.Errorf("rig has too many lenses (%d)", len(rig.Lenses))
	}

	m := &Mapper{
		rig:      rig,
		width:    width,
		height:   height,
		sampling: sampling,
		plan:     make([]pixelPlan, width*height),
	}
	m.build()
	return m, nil
}

// OutputWidth returns the panorama width.
func (m *Mapper) OutputWidth() int { return m.width }

// OutputHeight returns the panorama height.
func (m *Mapper) OutputHeight() int { return m.height }

func (m *Mapper) build() {
	subW := m.rig.SubWidth()
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			d := fisheye.DirectionAt(x, y, m.width, m.height)

			// Collect every lens that covers this direction together
			// with its angular margin from the FOV edge.
			var p pixelPlan
			var margins [2]float64
			for i, lens := range m.rig.Lenses {
				u, v, theta, inside := lens.Project(d)
				if !inside {
					continue
				}
				sx, sy := clampToLens(u, v, lens.Config(), subW, m.rig.InputHeight)
				sx += float64(i * subW)
				if p.n < 2 {
					margins[p.n] = math.Max(0, lens.Config().FOV/2-theta)
					p.taps[p.n] = tap{x: float32(sx), y: float32(sy), lens: int8(i)}
					p.n++
				}
			}

			switch p.n {
			case 1:
				p.taps[0].weight = 1
			case 2:
				// Linear seam blend: each lens weighted by its margin
				// from its own FOV edge, normalised to sum to 1.
				total := margins[0] + margins[1]
				if total <= 0 {
					p.taps[0].weight = 0.5
					p.taps[1].weight = 0.5
				} else {
					w0 := margins[0] / total
					p.taps[0].weight = float32(w0)
					p.taps[1].weight = float32(1 - w0)
				}
			}
			m.plan[y*m.width+x] = p
		}
	}
}

// clampToLens pulls a projected coordinate back inside the lens circle
// and the sub-image bounds. Rounding at the circle edge can land a hair
// outside; the read must never leave the sub-image.
func clampToLens(u, v float64, cfg fisheye.LensConfig, subW, subH int) (float64, float64) {
	du := u - cfg.CenterX
	dv := v - cfg.CenterY
	if r := math.Hypot(du, dv); r > cfg.Radius {
		scale := cfg.Radius / r
		u = cfg.CenterX + du*scale
		v = cfg.CenterY + dv*scale
	}
	u = math.Max(0, math.Min(u, float64(subW-1)))
	v = math.Max(0, math.Min(v, float64(subH-1)))
	return u, v
}

// Convert produces the equirectangular panorama for one source frame.
// The source must match the rig's input dimensions; a mismatch is a
// configuration error, not a per-frame condition.
func (m *Mapper) Convert(src *frame.Frame) (*frame.Frame, error) {
	if src.Width != m.rig.InputWidth || src.Height != m.rig.InputHeight {
		return nil, fmt.Errorf("source frame is %dx%d, rig expects %dx%d",
			src.Width, src.Height, m.rig.InputWidth, m.rig.InputHeight)
	}

	out, err := frame.New(m.width, m.height, src.Channels)
	if err != nil {
		return nil, err
	}

	ch := src.Channels
	subW := m.rig.SubWidth()
	var acc [frame.ChannelsColor]float32
	var px [frame.ChannelsColor]uint8
	for i, p := range m.plan {
		if p.n == 0 {
			continue // sentinel black, buffer is already zeroed
		}
		for c := 0; c < ch; c++ {
			acc[c] = 0
		}
		for t := 0; t < int(p.n); t++ {
			tp := p.taps[t]
			m.sample(src, tp, subW, px[:ch])
			for c := 0; c < ch; c++ {
				acc[c] += tp.weight * float32(px[c])
			}
		}
		off := i * ch
		for c := 0; c < ch; c++ {
			out.Pix[off+c] = clampByte(acc[c])
		}
	}
	return out, nil
}

// sample reads one source pixel with the configured interpolation. The
// bilinear neighbourhood is clamped to the tap's lens sub-image so the
// read never crosses the frame midline.
func (m *Mapper) sample(src *frame.Frame, tp tap, subW int, dst []uint8) {
	if m.sampling == Nearest {
		x := int(tp.x + 0.5)
		y := int(tp.y + 0.5)
		copy(dst, src.At(x, y))
		return
	}

	lo := int(tp.lens) * subW
	hi := lo + subW - 1

	x0 := int(tp.x)
	y0 := int(tp.y)
	x1 := x0 + 1
	y1 := y0 + 1
	fx := tp.x - float32(x0)
	fy := tp.y - float32(y0)
	if x1 > hi {
		x1 = hi
	}
	if x0 < lo {
		x0 = lo
	}
	if y1 > src.Height-1 {
		y1 = src.Height - 1
	}

	p00 := src.At(x0, y0)
	p10 := src.At(x1, y0)
	p01 := src.At(x0, y1)
	p11 := src.At(x1, y1)
	for c := range dst {
		top := float32(p00[c]) + fx*(float32(p10[c])-float32(p00[c]))
		bot := float32(p01[c]) + fx*(float32(p11[c])-float32(p01[c]))
		dst[c] = clampByte(top + fy*(bot-top))
	}
}

func clampByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
