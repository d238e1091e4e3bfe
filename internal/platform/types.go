// Package platform provides host detection and Lua integration for envmgr.
//
// It detects the OS, architecture and distribution of the host, injects
// this information as a read-only table into the Lua settings file, and
// knows which launcher binaries (shell, file opener, IDE) apply on the
// current OS. Distribution details come from gopsutil; detection
// failures fall back to OS/arch only.
package platform

import "context"

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "darwin", "windows"
	Arch     string // normalized: "amd64", "arm64", or GOARCH as-is
	Platform string // distro or product ID, e.g. "ubuntu", "microsoft windows 11 pro"
	Family   string // canonical family on Linux, e.g. "debian"
	Version  string // platform version, e.g. "22.04"
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// Static is a Detector that always returns the same Info.
type Static struct {
	Info *Info
}

// Detect returns s.Info.
func (s Static) Detect(ctx context.Context) (*Info, error) {
	return s.Info, nil
}
