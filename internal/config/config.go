package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Config is the run configuration assembled from command line flags.
type Config struct {
	StreamPath   string // stream YAML
	FramesDir    string // local frame root
	FramesURL    string // remote frame origin, wins over FramesDir
	FrameExt     string
	PDFDPI       int
	Strict       bool
	Workers      int // concurrent frame loads, 0 derives it from the host
	Fast         bool
	OutputVideo  string
	PlanPath     string // capture plan YAML, overrides the sweep flags
	Width        int
	Height       int
	DPR          float64
	FPS          int
	Duration     float64
	StartSection string
	EndSection   string
	Ease         string
	QRCode       string
	Preset       string
	VideoEncoder string
	Quality      int
	ShowStats    bool
	BuildVersion string
}

// Presets are viewport sizes of common targets.
var Presets = map[string][2]int{
	"16:9":    {1280, 720},
	"9:16":    {720, 1280},
	"4:5":     {1080, 1350},
	"desktop": {1440, 900},
	"mobile":  {390, 844},
}

// ApplyPreset replaces the viewport size with a named preset. An empty name
// keeps the size.
func (c *Config) ApplyPreset() error {
	if c.Preset == "" {
		return nil
	}
	size, ok := Presets[c.Preset]
	if !ok {
		return fmt.Errorf("unknown preset %q", c.Preset)
	}
	c.Width, c.Height = size[0], size[1]
	return nil
}

func (c *Config) Validate() error {
	if c.StreamPath == "" {
		return fmt.Errorf("stream config is required")
	}
	if c.FramesDir == "" && c.FramesURL == "" {
		return fmt.Errorf("a frames directory or URL is required")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid viewport %dx%d", c.Width, c.Height)
	}
	if c.DPR <= 0 {
		return fmt.Errorf("invalid device pixel ratio %.2f", c.DPR)
	}
	if c.PlanPath == "" && (c.FPS <= 0 || c.Duration <= 0) {
		return fmt.Errorf("invalid timing: %d fps for %.2fs", c.FPS, c.Duration)
	}
	return nil
}

// DefaultOutput names the video after the stream and the time of the run.
func DefaultOutput(streamPath string, now time.Time) string {
	base := filepath.Base(streamPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ReplaceAll(name, " ", "_")
	return filepath.Join("output", fmt.Sprintf("%s_%s.mp4", name, now.Format("2006-01-02_15-04-05")))
}
