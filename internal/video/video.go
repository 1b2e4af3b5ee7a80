package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"

	"golang.org/x/image/draw"
)

// FrameEncoder consumes rendered frames in order.
type FrameEncoder interface {
	Start(ctx context.Context) error
	WriteFrame(img image.Image) error
	Close() error
}

type Params struct {
	Width, Height int
	FPS           int
	Encoder       string // ffmpeg codec name, e.g. libx264
	Quality       int
	Output        string
}

// DefaultQuality returns a sensible quality value for an encoder.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 23
	default:
		return 20
	}
}

// EvenSize rounds both dimensions up to even numbers, as yuv420p requires.
func EvenSize(p image.Point) image.Point {
	if p.X%2 != 0 {
		p.X++
	}
	if p.Y%2 != 0 {
		p.Y++
	}
	return p
}

// FFmpegEncoder streams raw RGBA frames into an ffmpeg process.
type FFmpegEncoder struct {
	Params  Params
	Overlay *Overlay

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	out     bytes.Buffer
	scratch *image.RGBA
	frames  int
}

func NewFFmpegEncoder(p Params) *FFmpegEncoder {
	return &FFmpegEncoder{Params: p}
}

func (e *FFmpegEncoder) Start(ctx context.Context) error {
	e.cmd = exec.CommandContext(ctx, "ffmpeg", e.buildFFmpegArgs()...)
	e.cmd.Stdout = &e.out
	e.cmd.Stderr = &e.out

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe error: %w", err)
	}
	e.stdin = stdin

	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w", err)
	}
	return nil
}

func (e *FFmpegEncoder) buildFFmpegArgs() []string {
	p := e.Params
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fmt.Sprintf("%d", p.FPS),
		"-i", "-",
		"-r", fmt.Sprintf("%d", p.FPS),
		"-pix_fmt", "yuv420p",
		"-c:v", p.Encoder,
	}

	quality := p.Quality
	if quality <= 0 {
		quality = DefaultQuality(p.Encoder)
	}
	switch p.Encoder {
	case "h264_videotoolbox":
		bitrate := quality * 100
		args = append(args, "-b:v", fmt.Sprintf("%dk", bitrate))
	case "h264_nvenc":
		args = append(args, "-cq", fmt.Sprintf("%d", quality))
	default: // libx264
		args = append(args, "-crf", fmt.Sprintf("%d", quality), "-preset", "medium")
	}

	args = append(args, p.Output)
	return args
}

// WriteFrame writes one frame. Frames up to one pixel off the configured size
// per axis are padded with black or cropped to it.
func (e *FFmpegEncoder) WriteFrame(img image.Image) error {
	if e.stdin == nil {
		return fmt.Errorf("encoder not started")
	}
	b := img.Bounds()
	w, h := e.Params.Width, e.Params.Height
	if abs(b.Dx()-w) > 1 || abs(b.Dy()-h) > 1 {
		return fmt.Errorf("frame %d is %dx%d, expected %dx%d", e.frames, b.Dx(), b.Dy(), w, h)
	}

	resized := b.Dx() != w || b.Dy() != h
	if e.Overlay != nil || resized {
		if e.scratch == nil {
			e.scratch = image.NewRGBA(image.Rect(0, 0, w, h))
		}
		if resized {
			draw.Draw(e.scratch, e.scratch.Bounds(), image.Black, image.Point{}, draw.Src)
		}
		draw.Draw(e.scratch, e.scratch.Bounds(), img, b.Min, draw.Src)
		if e.Overlay != nil {
			e.Overlay.Apply(e.scratch)
		}
		img = e.scratch
	}

	if err := writeRawRGBA(e.stdin, img); err != nil {
		return fmt.Errorf("write raw error: %w", err)
	}
	e.frames++
	return nil
}

// Close flushes the stream and waits for ffmpeg to finish.
func (e *FFmpegEncoder) Close() error {
	if e.stdin == nil {
		return nil
	}
	e.stdin.Close()
	e.stdin = nil
	if e.cmd == nil {
		return nil
	}
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w\nLog: %s", err, e.out.String())
	}
	return nil
}

func (e *FFmpegEncoder) Frames() int { return e.frames }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}
