// Package anim sequences per-window heatmaps into an animation. Frames
// are materialized lazily so long rolling histories never hold every
// rendered image in memory at once.
package anim

import (
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"
	"time"

	"github.com/macroview/macrocorr/internal/cluster"
	mclog "github.com/macroview/macrocorr/internal/log"
	"github.com/macroview/macrocorr/internal/render"
)

// EmptySequenceError indicates the rolling correlation sequence produced
// zero valid windows, so there is nothing to animate.
type EmptySequenceError struct {
	Reason string
}

func (e *EmptySequenceError) Error() string {
	return fmt.Sprintf("empty animation sequence: %s", e.Reason)
}

// Frame is one animation unit: a rendered heatmap tagged with its window
// end-date. Each frame carries its own date stamp in the heatmap title so
// viewers can read the timeline.
type Frame struct {
	End     time.Time
	Heatmap *render.Heatmap
}

// Sequence is a lazy, finite, non-restartable iterator over frames in
// increasing end-date order.
type Sequence struct {
	scale    render.Scale
	matrices []*cluster.OrderedMatrix
	next     int
}

// Len returns the total number of frames.
func (s *Sequence) Len() int { return len(s.matrices) }

// Next renders and returns the next frame. The second return is false
// once the sequence is exhausted.
func (s *Sequence) Next() (*Frame, bool, error) {
	if s.next >= len(s.matrices) {
		return nil, false, nil
	}
	om := s.matrices[s.next]
	s.next++
	h, err := render.RenderStatic(om, s.scale)
	if err != nil {
		return nil, false, fmt.Errorf("failed to render frame %d: %w", s.next-1, err)
	}
	return &Frame{End: om.Matrix.Window.End, Heatmap: h}, true, nil
}

// Assembler sequences ordered matrices into playable frames.
type Assembler struct {
	Scale render.Scale
	// FrameSeconds is the per-frame display duration. Presentation only.
	FrameSeconds float64
}

// Assemble validates the rolling sequence and returns the lazy frame
// sequence plus the designated final frame, the one a player holds on
// when playback stops. The final frame is rendered eagerly; the rest on
// demand.
func (a *Assembler) Assemble(oms []*cluster.OrderedMatrix) (*Sequence, *Frame, error) {
	if len(oms) == 0 {
		return nil, nil, &EmptySequenceError{Reason: "no valid rolling windows"}
	}
	for i := 1; i < len(oms); i++ {
		prev, cur := oms[i-1].Matrix.Window.End, oms[i].Matrix.Window.End
		if !cur.After(prev) {
			return nil, nil, fmt.Errorf("rolling sequence not strictly increasing at %s", cur.Format("2006-01"))
		}
	}
	last := oms[len(oms)-1]
	h, err := render.RenderStatic(last, a.Scale)
	if err != nil {
		return nil, nil, err
	}
	final := &Frame{End: last.Matrix.Window.End, Heatmap: h}
	return &Sequence{scale: a.Scale, matrices: oms}, final, nil
}

// EncodeGIF consumes the sequence and writes an animated GIF. The
// animation plays once and holds on the final frame, which also gets an
// extended delay so the terminal state stays readable.
func (a *Assembler) EncodeGIF(seq *Sequence, w io.Writer) error {
	delay := int(a.FrameSeconds * 100) // centiseconds
	if delay < 2 {
		delay = 2
	}
	out := &gif.GIF{
		// Play once; viewers hold on the last frame instead of looping.
		LoopCount: -1,
	}
	progress := mclog.NewProgress("gif encode", seq.Len())
	for {
		frame, ok, err := seq.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		img := render.RasterImage(frame.Heatmap)
		pal := image.NewPaletted(img.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(pal, img.Bounds(), img, image.Point{})
		out.Image = append(out.Image, pal)
		out.Delay = append(out.Delay, delay)
		progress.Step()
	}
	if len(out.Image) == 0 {
		return &EmptySequenceError{Reason: "sequence yielded no frames"}
	}
	out.Delay[len(out.Delay)-1] = delay * 4
	if err := gif.EncodeAll(w, out); err != nil {
		return fmt.Errorf("failed to encode gif: %w", err)
	}
	return nil
}
