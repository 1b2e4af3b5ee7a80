package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/ivlev/scrollfilm/internal/stream"
)

// DefaultExt is the extension of the frame files produced by the frame pipeline.
const DefaultExt = "webp"

// FramePath builds the asset path of a frame: {base}/{segment}/frame_{nnnn}.{ext}.
// A segment with a custom FramePath pattern gets {n} replaced instead.
func FramePath(base string, seg stream.Segment, frame int, ext string) string {
	n := fmt.Sprintf("%04d", frame)
	if seg.FramePath != "" {
		return strings.ReplaceAll(seg.FramePath, "{n}", n)
	}
	if ext == "" {
		ext = DefaultExt
	}
	return fmt.Sprintf("%s/%d/frame_%s.%s", strings.TrimSuffix(base, "/"), seg.ID, n, ext)
}

// DirLoader reads frames from a directory laid out as {root}/{segment}/frame_nnnn.{ext}.
type DirLoader struct {
	Root string
	Ext  string
}

func NewDirLoader(root, ext string) *DirLoader {
	return &DirLoader{Root: root, Ext: ext}
}

func (d *DirLoader) Load(ctx context.Context, seg stream.Segment, frame int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(d.path(seg, frame))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Name(), err)
	}
	return img, nil
}

// path resolves custom patterns against Root; a leading slash in a pattern is
// the web root, which is Root on disk.
func (d *DirLoader) path(seg stream.Segment, frame int) string {
	p := FramePath(d.Root, seg, frame, d.Ext)
	if seg.FramePath != "" {
		p = filepath.Join(d.Root, strings.TrimPrefix(p, "/"))
	}
	return filepath.FromSlash(p)
}

// Dimensions reports the size of the first frame of a segment without
// decoding the pixels.
func (d *DirLoader) Dimensions(seg stream.Segment) (int, int, error) {
	f, err := os.Open(d.path(seg, 1))
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// HTTPLoader fetches frames from an origin serving the same layout as DirLoader.
type HTTPLoader struct {
	BaseURL string
	Ext     string
	Client  *http.Client
}

func NewHTTPLoader(baseURL, ext string) *HTTPLoader {
	return &HTTPLoader{BaseURL: baseURL, Ext: ext, Client: http.DefaultClient}
}

func (h *HTTPLoader) Load(ctx context.Context, seg stream.Segment, frame int) (image.Image, error) {
	url := FramePath(h.BaseURL, seg, frame, h.Ext)
	if seg.FramePath != "" && !strings.Contains(url, "://") {
		url = strings.TrimSuffix(h.BaseURL, "/") + "/" + strings.TrimPrefix(url, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return img, nil
}
