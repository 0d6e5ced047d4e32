package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("allocates zeroed buffer", func(t *testing.T) {
		t.Parallel()
		f, err := New(4, 3, ChannelsColor)
		require.NoError(t, err)
		assert.Len(t, f.Pix, 4*3*3)
		assert.Equal(t, 12, f.Stride())
	})

	t.Run("rejects bad dimensions", func(t *testing.T) {
		t.Parallel()
		_, err := New(0, 3, ChannelsColor)
		assert.Error(t, err)
		_, err = New(4, -1, ChannelsColor)
		assert.Error(t, err)
	})

	t.Run("rejects unsupported channel count", func(t *testing.T) {
		t.Parallel()
		_, err := New(4, 3, 4)
		assert.Error(t, err)
	})
}

func TestFromBytes(t *testing.T) {
	t.Parallel()

	pix := make([]uint8, 2*2*3)
	f, err := FromBytes(2, 2, ChannelsColor, pix)
	require.NoError(t, err)
	assert.Equal(t, &pix[0], &f.Pix[0], "FromBytes must not copy")

	_, err = FromBytes(2, 2, ChannelsColor, make([]uint8, 5))
	assert.Error(t, err)
}

func TestAtSet(t *testing.T) {
	t.Parallel()

	f, err := New(3, 2, ChannelsColor)
	require.NoError(t, err)

	f.Set(2, 1, []uint8{10, 20, 30})
	assert.Equal(t, []uint8{10, 20, 30}, f.At(2, 1))
	assert.Equal(t, []uint8{0, 0, 0}, f.At(0, 0))
}

func TestClone(t *testing.T) {
	t.Parallel()

	f, err := New(2, 2, ChannelsGray)
	require.NoError(t, err)
	f.Pix[0] = 42

	c := f.Clone()
	c.Pix[0] = 7
	assert.Equal(t, uint8(42), f.Pix[0], "clone must not alias the original")
}

func TestGray(t *testing.T) {
	t.Parallel()

	t.Run("converts BGR with BT.601 weights", func(t *testing.T) {
		t.Parallel()
		f, err := New(2, 1, ChannelsColor)
		require.NoError(t, err)
		f.Set(0, 0, []uint8{255, 255, 255}) // white
		f.Set(1, 0, []uint8{255, 0, 0})     // pure blue in BGR

		g := f.Gray()
		assert.Equal(t, ChannelsGray, g.Channels)
		assert.Equal(t, uint8(255), g.Pix[0])
		assert.Equal(t, uint8(29), g.Pix[1]) // 0.114 * 255, rounded
	})

	t.Run("gray input is returned unchanged", func(t *testing.T) {
		t.Parallel()
		f, err := New(2, 2, ChannelsGray)
		require.NoError(t, err)
		assert.Same(t, f, f.Gray())
	})
}

func TestSubWidth(t *testing.T) {
	t.Parallel()

	f, err := New(1280, 720, ChannelsColor)
	require.NoError(t, err)
	assert.Equal(t, 640, f.SubWidth())
}
