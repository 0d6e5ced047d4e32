// Package frame provides the pixel buffer types shared by the capture
// pipeline: interleaved 8-bit frames, sub-image views and channel
// conversion.
package frame

import "fmt"

// Channel depths supported by the pipeline.
const (
	ChannelsGray  = 1
	ChannelsColor = 3
)

// Frame is a row-major, interleaved 8-bit pixel buffer. Color frames use
// three channels in BGR order (matching the capture backend); gray frames
// use one. A Frame is created once per capture tick and must not be
// modified after it has been handed to a sink.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// New allocates a zeroed frame of the given dimensions.
func New(width, height, channels int) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %dx%d", width, height)
	}
	if channels != ChannelsGray && channels != ChannelsColor {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}, nil
}

// FromBytes wraps an existing interleaved pixel buffer. The buffer is not
// copied; the caller gives up ownership.
func FromBytes(width, height, channels int, pix []uint8) (*Frame, error) {
	f, err := New(width, height, channels)
	if err != nil {
		return nil, err
	}
	if len(pix) != len(f.Pix) {
		return nil, fmt.Errorf("pixel buffer length %d does not match %dx%dx%d",
			len(pix), width, height, channels)
	}
	f.Pix = pix
	return f, nil
}

// Stride returns the number of bytes per row.
func (f *Frame) Stride() int {
	return f.Width * f.Channels
}

// At returns the channel values at (x, y). The returned slice aliases the
// frame's pixel buffer.
func (f *Frame) At(x, y int) []uint8 {
	off := y*f.Stride() + x*f.Channels
	return f.Pix[off : off+f.Channels]
}

// Set writes the channel values at (x, y).
func (f *Frame) Set(x, y int, px []uint8) {
	copy(f.At(x, y), px)
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	pix := make([]uint8, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Width: f.Width, Height: f.Height, Channels: f.Channels, Pix: pix}
}

// SubWidth returns the width of each lens sub-image for a side-by-side
// dual-fisheye frame.
func (f *Frame) SubWidth() int {
	return f.Width / 2
}

// Gray converts a color frame to single-channel using BT.601 luma
// weights. Gray input is returned unchanged.
func (f *Frame) Gray() *Frame {
	if f.Channels == ChannelsGray {
		return f
	}
	out := &Frame{
		Width:    f.Width,
		Height:   f.Height,
		Channels: ChannelsGray,
		Pix:      make([]uint8, f.Width*f.Height),
	}
	for i, j := 0, 0; i < len(f.Pix); i, j = i+3, j+1 {
		// BGR channel order.
		b := uint32(f.Pix[i])
		g := uint32(f.Pix[i+1])
		r := uint32(f.Pix[i+2])
		out.Pix[j] = uint8((114*b + 587*g + 299*r + 500) / 1000)
	}
	return out
}
