package system

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// MaxLoadConcurrency caps in-flight frame loads. Higher values exhaust memory
// on small hosts without making the first paint any faster.
const MaxLoadConcurrency = 30

// InitResourceLimits raises the open file limit; every in-flight frame load
// holds a descriptor.
func InitResourceLimits() {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Could not read open file limit: %v", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Could not raise open file limit: %v", err)
	} else {
		fmt.Printf("[*] Open file limit raised to %d\n", rLimit.Cur)
	}
}

// LoadConcurrency picks how many frames may load at once from the host's
// logical CPUs and available memory. frameBytes is the decoded size of one
// frame; 0 skips the memory bound.
func LoadConcurrency(frameBytes int64) int {
	n := MaxLoadConcurrency

	if cores, err := cpu.Counts(true); err == nil && cores > 0 && cores*4 < n {
		n = cores * 4
	}

	if frameBytes > 0 {
		if vm, err := mem.VirtualMemory(); err == nil {
			// keep in-flight decodes under 5% of what is available
			budget := int64(vm.Available / 20)
			if byMem := int(budget / frameBytes); byMem < n {
				n = byMem
			}
		}
	}

	if n < 1 {
		n = 1
	}
	return n
}

// Stats is a point-in-time snapshot of host resources for performance reports.
type Stats struct {
	CPUPercent  float64
	MemUsedMB   uint64
	MemPercent  float64
	CollectedAt time.Time
}

func CollectStats() Stats {
	s := Stats{CollectedAt: time.Now()}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemUsedMB = vm.Used / 1024 / 1024
		s.MemPercent = vm.UsedPercent
	}
	return s
}

// FindLatestFile returns the most recently modified file in dir with one of
// the given extensions.
func FindLatestFile(dir string, extensions ...string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() {
			continue
		}
		matched := false
		for _, ext := range extensions {
			if strings.HasSuffix(strings.ToLower(f.Name()), ext) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no %s files found in %s", strings.Join(extensions, "/"), dir)
	}

	return latestFile, nil
}

func GetBestH264Encoder() string {
	// Priorities:
	// 1. MacOS (VideoToolbox)
	// 2. NVIDIA (NVENC)
	// 3. Software (libx264)
	cmd := exec.Command("ffmpeg", "-hide_banner", "-encoders")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "libx264"
	}

	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(string(out), name) {
			return name
		}
	}

	return "libx264"
}
