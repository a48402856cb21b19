// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package render

import (
	"image"
	"image/color"
	"strconv"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/relabs-tech/reach_rig/internal/stimulus"
)

// Frame rasterizes stimulus descriptors into an RGBA image. It backs the
// observer web view and can be snapshotted for the dataset; the sampling
// loop itself only hands it descriptor lists.
type Frame struct {
	mu      sync.Mutex
	img     *image.RGBA
	pending []stimulus.Element
	label   string
}

func NewFrame(width, height int) *Frame {
	return &Frame{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// DrawElements replaces the pending element list for the next present.
func (f *Frame) DrawElements(elems []stimulus.Element) {
	f.mu.Lock()
	f.pending = append(f.pending[:0], elems...)
	f.mu.Unlock()
}

// SetLabel sets the status line drawn in the frame corner.
func (f *Frame) SetLabel(s string) {
	f.mu.Lock()
	f.label = s
	f.mu.Unlock()
}

// EmptyScreen clears the pending list so the next present blanks the frame.
func (f *Frame) EmptyScreen() {
	f.mu.Lock()
	f.pending = f.pending[:0]
	f.mu.Unlock()
}

// Update rasterizes the pending elements immediately.
func (f *Frame) Update() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rasterize()
	return nil
}

// ScheduleAsync presents synchronously; rasterizing in memory is cheaper
// than one refresh interval, so the async pairing degenerates safely.
func (f *Frame) ScheduleAsync()        { _ = f.Update() }
func (f *Frame) CheckAsyncReady() bool { return true }

// Snapshot returns a copy of the last presented image.
func (f *Frame) Snapshot() *image.RGBA {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := image.NewRGBA(f.img.Rect)
	copy(out.Pix, f.img.Pix)
	return out
}

func (f *Frame) rasterize() {
	bg := color.RGBA{A: 255}
	b := f.img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			f.img.SetRGBA(x, y, bg)
		}
	}

	for _, e := range f.pending {
		c := parseColor(e.Color)
		cx, cy := int(e.Location.X), int(e.Location.Y)
		r := int(e.Size)
		switch e.Shape {
		case stimulus.ShapeSquare:
			f.fillRect(cx-r, cy-r, cx+r, cy+r, c)
		case stimulus.ShapeCross, stimulus.ShapeFixCue:
			f.fillRect(cx-r, cy-1, cx+r, cy+1, c)
			f.fillRect(cx-1, cy-r, cx+1, cy+r, c)
		default: // circle, marker
			f.fillCircle(cx, cy, r, c)
		}
	}

	if f.label != "" {
		d := font.Drawer{
			Dst:  f.img,
			Src:  image.NewUniform(color.RGBA{R: 200, G: 200, B: 200, A: 255}),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(4, 14),
		}
		d.DrawString(f.label)
	}
}

func (f *Frame) fillRect(x0, y0, x1, y1 int, c color.RGBA) {
	b := f.img.Bounds()
	for y := max(y0, b.Min.Y); y <= min(y1, b.Max.Y-1); y++ {
		for x := max(x0, b.Min.X); x <= min(x1, b.Max.X-1); x++ {
			f.img.SetRGBA(x, y, c)
		}
	}
}

func (f *Frame) fillCircle(cx, cy, r int, c color.RGBA) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				x, y := cx+dx, cy+dy
				if image.Pt(x, y).In(f.img.Bounds()) {
					f.img.SetRGBA(x, y, c)
				}
			}
		}
	}
}

// parseColor accepts #rrggbb; anything else renders white.
func parseColor(s string) color.RGBA {
	if len(s) == 7 && s[0] == '#' {
		if v, err := strconv.ParseUint(s[1:], 16, 32); err == nil {
			return color.RGBA{
				R: uint8(v >> 16),
				G: uint8(v >> 8),
				B: uint8(v),
				A: 255,
			}
		}
	}
	return color.RGBA{R: 255, G: 255, B: 255, A: 255}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
