package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect uses runtime.GOOS and runtime.GOARCH for OS and architecture,
// and gopsutil for the platform name, family and version.
//
// If gopsutil fails, the platform fields stay empty and detection still
// succeeds. Only context cancellation is a hard failure.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:   runtime.GOOS,
		Arch: normalizeArch(runtime.GOARCH),
	}

	name, family, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		return info, nil
	}

	info.Platform = normalizePlatform(name)
	info.Version = normalizePlatform(version)
	if info.IsLinux() && info.Platform != "" {
		info.Family = mapFamily(family)
	}

	return info, nil
}
