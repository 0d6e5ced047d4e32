package equirect

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/linto-ai/fisheye-recorder/internal/frame"
)

// RemapTable is a precomputed nearest-neighbour remap: for each output
// pixel it holds the integer source coordinate to copy. Tables are
// interchanged as a pair of ASCII PGM (P2) files, one for the x
// coordinates and one for the y coordinates.
type RemapTable struct {
	Width  int
	Height int
	X      []int
	Y      []int
}

// RemapTable flattens the mapper's plan into a nearest-neighbour table,
// keeping only the dominant tap of each pixel. Uncovered pixels map to
// (0, 0); the corner of a lens sub-image is outside both circles and
// reads as near-black, close enough to the sentinel rendering for a
// single-tap table.
func (m *Mapper) RemapTable() *RemapTable {
	t := &RemapTable{
		Width:  m.width,
		Height: m.height,
		X:      make([]int, len(m.plan)),
		Y:      make([]int, len(m.plan)),
	}
	for i, p := range m.plan {
		if p.n == 0 {
			continue
		}
		best := p.taps[0]
		if p.n == 2 && p.taps[1].weight > p.taps[0].weight {
			best = p.taps[1]
		}
		t.X[i] = int(best.x + 0.5)
		t.Y[i] = int(best.y + 0.5)
	}
	return t
}

// Apply remaps a source frame through the table.
func (t *RemapTable) Apply(src *frame.Frame) (*frame.Frame, error) {
	out, err := frame.New(t.Width, t.Height, src.Channels)
	if err != nil {
		return nil, err
	}
	for i := range t.X {
		x, y := t.X[i], t.Y[i]
		if x < 0 || x >= src.Width || y < 0 || y >= src.Height {
			return nil, fmt.Errorf("remap entry %d points outside the source frame: (%d, %d)", i, x, y)
		}
		copy(out.Pix[i*out.Channels:(i+1)*out.Channels], src.At(x, y))
	}
	return out, nil
}

// writePGM writes one coordinate plane of the table as an ASCII PGM (P2)
// file, one output row per line.
func writePGM(w io.Writer, name string, width, height int, values []int) error {
	bw := bufio.NewWriter(w)
	maxVal := 0
	for _, v := range values {
		if v > maxVal {
			maxVal = v
		}
	}
	fmt.Fprintf(bw, "P2\n# %s\n%d %d\n%d\n", name, width, height, maxVal)
	for y := 0; y < height; y++ {
		row := values[y*width : (y+1)*width]
		for x, v := range row {
			if x > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%d", v)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteXMap writes the x-coordinate plane as a P2 PGM.
func (t *RemapTable) WriteXMap(w io.Writer, name string) error {
	return writePGM(w, name, t.Width, t.Height, t.X)
}

// WriteYMap writes the y-coordinate plane as a P2 PGM.
func (t *RemapTable) WriteYMap(w io.Writer, name string) error {
	return writePGM(w, name, t.Width, t.Height, t.Y)
}

// ReadRemapTable reads a pair of P2 PGM coordinate planes produced by
// WriteXMap/WriteYMap or by external calibration tools.
func ReadRemapTable(xmap, ymap io.Reader) (*RemapTable, error) {
	xw, xh, xs, err := readPGM(xmap)
	if err != nil {
		return nil, fmt.Errorf("xmap: %w", err)
	}
	yw, yh, ys, err := readPGM(ymap)
	if err != nil {
		return nil, fmt.Errorf("ymap: %w", err)
	}
	if xw != yw || xh != yh {
		return nil, fmt.Errorf("map size mismatch: xmap %dx%d, ymap %dx%d", xw, xh, yw, yh)
	}
	return &RemapTable{Width: xw, Height: xh, X: xs, Y: ys}, nil
}

func readPGM(r io.Reader) (width, height int, values []int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	next := func() (string, error) {
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			return line, nil
		}
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}

	magic, err := next()
	if err != nil {
		return 0, 0, nil, err
	}
	if magic != "P2" {
		return 0, 0, nil, fmt.Errorf("not an ASCII PGM file (magic %q)", magic)
	}

	dims, err := next()
	if err != nil {
		return 0, 0, nil, err
	}
	if _, err := fmt.Sscanf(dims, "%d %d", &width, &height); err != nil {
		return 0, 0, nil, fmt.Errorf("bad dimension line %q: %w", dims, err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, nil, fmt.Errorf("bad map dimensions %dx%d", width, height)
	}

	// Maximum value line is present but unused.
	if _, err := next(); err != nil {
		return 0, 0, nil, err
	}

	values = make([]int, 0, width*height)
	for len(values) < width*height {
		line, err := next()
		if err != nil {
			return 0, 0, nil, err
		}
		for _, field := range strings.Fields(line) {
			var v int
			if _, err := fmt.Sscanf(field, "%d", &v); err != nil {
				return 0, 0, nil, fmt.Errorf("bad sample %q: %w", field, err)
			}
			values = append(values, v)
		}
	}
	if len(values) != width*height {
		return 0, 0, nil, fmt.Errorf("expected %d samples, got %d", width*height, len(values))
	}
	return width, height, values, nil
}
