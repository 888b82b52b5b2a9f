package api

import (
	"fmt"
	"io"
	"math"

	"github.com/fogleman/gg"

	"vessel-racer/internal/game"
)

// ViewOptions sizes the top-down debug view.
type ViewOptions struct {
	Size           int     // square image edge in pixels
	PixelsPerMeter float64 // world scale
	ForceScale     float64 // pixels per newton for force arrows
	GridMeters     float64
}

// DefaultViewOptions returns a 512px view at 20px/m.
func DefaultViewOptions() ViewOptions {
	return ViewOptions{
		Size:           512,
		PixelsPerMeter: 20,
		ForceScale:     0.5,
		GridMeters:     5,
	}
}

const (
	minViewSize  = 64
	maxViewSize  = 2048
	vesselRadius = 6
)

// RenderView draws every vessel in snap seen from above as a PNG. World X
// runs right and world Z runs down; the view is centred on the vessels'
// mean position. Throttle and steering are drawn in blue, the applied
// force in red.
func RenderView(w io.Writer, snap *game.Snapshot, opts ViewOptions) error {
	size := opts.Size
	if size < minViewSize {
		size = minViewSize
	}
	if size > maxViewSize {
		size = maxViewSize
	}
	ppm := opts.PixelsPerMeter
	if ppm <= 0 {
		ppm = DefaultViewOptions().PixelsPerMeter
	}

	dc := gg.NewContext(size, size)
	dc.SetRGB(0.08, 0.09, 0.11)
	dc.Clear()

	cx, cz := centre(snap.Vessels)
	half := float64(size) / 2
	toScreen := func(x, z float64) (float64, float64) {
		return half + (x-cx)*ppm, half + (z-cz)*ppm
	}

	drawGrid(dc, size, ppm, opts.GridMeters, toScreen, cx, cz)

	for _, v := range snap.Vessels {
		px, py := toScreen(float64(v.Position[0]), float64(v.Position[2]))
		drawVessel(dc, v, px, py, opts.ForceScale)
	}

	dc.SetRGB(0.85, 0.85, 0.85)
	dc.DrawString(fmt.Sprintf("%s/%s tick %d vessels %d", snap.Mode, snap.State, snap.Tick, len(snap.Vessels)), 8, 16)

	return dc.EncodePNG(w)
}

func centre(vessels []game.VesselSnapshot) (float64, float64) {
	if len(vessels) == 0 {
		return 0, 0
	}
	var x, z float64
	for _, v := range vessels {
		x += float64(v.Position[0])
		z += float64(v.Position[2])
	}
	n := float64(len(vessels))
	return x / n, z / n
}

func drawGrid(dc *gg.Context, size int, ppm, step float64, toScreen func(x, z float64) (float64, float64), cx, cz float64) {
	if step <= 0 || step*ppm < 4 {
		return
	}
	span := float64(size) / ppm / 2
	dc.SetRGBA(1, 1, 1, 0.08)
	dc.SetLineWidth(1)
	for x := math.Floor((cx-span)/step) * step; x <= cx+span; x += step {
		sx, _ := toScreen(x, cz)
		dc.DrawLine(sx, 0, sx, float64(size))
	}
	for z := math.Floor((cz-span)/step) * step; z <= cz+span; z += step {
		_, sy := toScreen(cx, z)
		dc.DrawLine(0, sy, float64(size), sy)
	}
	dc.Stroke()
}

func drawVessel(dc *gg.Context, v game.VesselSnapshot, px, py, forceScale float64) {
	switch {
	case !v.Spawned:
		dc.SetRGB(0.45, 0.45, 0.45)
	case v.Local:
		dc.SetRGB(0.2, 0.85, 0.35)
	case v.Owner != 0:
		dc.SetRGB(0.95, 0.75, 0.2)
	default:
		dc.SetRGB(0.75, 0.75, 0.8)
	}
	dc.DrawCircle(px, py, vesselRadius)
	dc.Fill()

	// heading 0 is +X; screen y grows with +Z, which is -yaw
	h := float64(v.Heading)
	fx, fy := math.Cos(h), -math.Sin(h)
	dc.SetLineWidth(2)
	dc.DrawLine(px, py, px+fx*vesselRadius*2, py+fy*vesselRadius*2)
	dc.Stroke()

	throttle, steer := float64(v.Control[0]), float64(v.Control[1])
	if throttle != 0 || steer != 0 {
		// steering is drawn across the heading
		lx, ly := fy, -fx
		ex := px + (fx*throttle+lx*steer)*vesselRadius*4
		ey := py + (fy*throttle+ly*steer)*vesselRadius*4
		dc.SetRGB(0.25, 0.5, 1)
		dc.DrawLine(px, py, ex, ey)
		dc.Stroke()
	}

	if v.Force[0] != 0 || v.Force[2] != 0 {
		dc.SetRGB(1, 0.25, 0.25)
		dc.DrawLine(px, py, px+float64(v.Force[0])*forceScale, py+float64(v.Force[2])*forceScale)
		dc.Stroke()
	}
}
