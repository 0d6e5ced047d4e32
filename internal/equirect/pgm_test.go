package equirect

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linto-ai/fisheye-recorder/internal/frame"
)

func TestRemapTableBounds(t *testing.T) {
	t.Parallel()

	rig := testRig(t)
	mapper, err := NewMapper(rig, 64, 32, Nearest)
	require.NoError(t, err)

	table := mapper.RemapTable()
	require.Equal(t, 64, table.Width)
	require.Equal(t, 32, table.Height)
	require.Len(t, table.X, 64*32)

	for i := range table.X {
		assert.GreaterOrEqual(t, table.X[i], 0)
		assert.Less(t, table.X[i], rig.InputWidth)
		assert.GreaterOrEqual(t, table.Y[i], 0)
		assert.Less(t, table.Y[i], rig.InputHeight)
	}
}

func TestRemapTableApply(t *testing.T) {
	t.Parallel()

	rig := testRig(t)
	mapper, err := NewMapper(rig, 64, 32, Nearest)
	require.NoError(t, err)
	table := mapper.RemapTable()

	src := patternFrame(t, rig, frame.ChannelsColor)
	out, err := table.Apply(src)
	require.NoError(t, err)
	assert.Equal(t, 64, out.Width)
	assert.Equal(t, 32, out.Height)

	// Each output pixel is a straight copy of the mapped source pixel.
	for i := 0; i < len(table.X); i += 37 {
		x, y := i%64, i/64
		assert.Equal(t, src.At(table.X[i], table.Y[i]), out.At(x, y))
	}

	t.Run("rejects out-of-bounds entries", func(t *testing.T) {
		bad := &RemapTable{Width: 2, Height: 1, X: []int{0, 99}, Y: []int{0, 0}}
		_, err := bad.Apply(src)
		assert.Error(t, err)
	})
}

func TestPGMRoundTrip(t *testing.T) {
	t.Parallel()

	rig := testRig(t)
	mapper, err := NewMapper(rig, 64, 32, Nearest)
	require.NoError(t, err)
	table := mapper.RemapTable()

	var xbuf, ybuf bytes.Buffer
	require.NoError(t, table.WriteXMap(&xbuf, "xmap_test.pgm"))
	require.NoError(t, table.WriteYMap(&ybuf, "ymap_test.pgm"))

	assert.True(t, strings.HasPrefix(xbuf.String(), "P2\n"), "xmap must be ASCII PGM")

	loaded, err := ReadRemapTable(&xbuf, &ybuf)
	require.NoError(t, err)
	if diff := cmp.Diff(table, loaded); diff != "" {
		t.Errorf("table changed through PGM round trip (-want +got):\n%s", diff)
	}
}

func TestReadRemapTableErrors(t *testing.T) {
	t.Parallel()

	t.Run("rejects non-P2 input", func(t *testing.T) {
		t.Parallel()
		_, err := ReadRemapTable(strings.NewReader("P5\n2 2\n255\n"), strings.NewReader("P2\n2 2\n255\n0 0\n0 0\n"))
		assert.Error(t, err)
	})

	t.Run("rejects mismatched map sizes", func(t *testing.T) {
		t.Parallel()
		x := "P2\n1 1\n9\n3\n"
		y := "P2\n2 1\n9\n3 4\n"
		_, err := ReadRemapTable(strings.NewReader(x), strings.NewReader(y))
		assert.Error(t, err)
	})

	t.Run("rejects truncated data", func(t *testing.T) {
		t.Parallel()
		x := "P2\n2 2\n9\n1 2\n"
		y := "P2\n2 2\n9\n1 2\n3 4\n"
		_, err := ReadRemapTable(strings.NewReader(x), strings.NewReader(y))
		assert.Error(t, err)
	})
}
