package environment

import "errors"

var (
	// ErrInvalidRecord is returned when a nil patch or a patch without a
	// version is upserted.
	ErrInvalidRecord = errors.New("invalid environment record")
	// ErrUnknownEnvironment is returned when a toolchain is attached to a
	// version the registry does not know.
	ErrUnknownEnvironment = errors.New("unknown environment version")
	// ErrBusy is returned by TryBegin while another operation holds the gate.
	ErrBusy = errors.New("another install or remove operation is in progress")
)

// Toolchain describes a downloadable toolchain archive of an environment.
type Toolchain struct {
	Version string `json:"version" yaml:"version"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	SHA512  string `json:"sha512,omitempty" yaml:"sha512,omitempty"`
}

// Record is the state of one SDK environment version.
type Record struct {
	Version string `json:"version" yaml:"version"`
	// ToolchainDir is empty while the environment is not installed.
	ToolchainDir string `json:"toolchainDir,omitempty" yaml:"toolchain_dir,omitempty"`
	// Progress is nil outside of a progress-reporting phase.
	Progress       *int        `json:"progress,omitempty" yaml:"progress,omitempty"`
	IsInProcess    bool        `json:"isInProcess" yaml:"is_in_process"`
	IsCloning      bool        `json:"isCloning" yaml:"is_cloning"`
	IsRemoving     bool        `json:"isRemoving" yaml:"is_removing"`
	IsWestPresent  bool        `json:"isWestPresent" yaml:"is_west_present"`
	SourceRevision string      `json:"sourceRevision,omitempty" yaml:"source_revision,omitempty"`
	Toolchains     []Toolchain `json:"toolchains,omitempty" yaml:"toolchains,omitempty"`
}

// Installed reports whether the environment has an extracted toolchain.
func (r Record) Installed() bool {
	return r.ToolchainDir != ""
}

// clone returns a deep copy so callers never share slices or pointers
// with the store.
func (r Record) clone() Record {
	out := r
	if r.Progress != nil {
		p := *r.Progress
		out.Progress = &p
	}
	if r.Toolchains != nil {
		out.Toolchains = append([]Toolchain(nil), r.Toolchains...)
	}
	return out
}

// Patch is a partial update of a Record. Nil fields are left unchanged.
type Patch struct {
	Version string

	// ToolchainDir set to an empty string marks the environment as not installed.
	ToolchainDir   *string
	Progress       *int
	ClearProgress  bool
	IsInProcess    *bool
	IsCloning      *bool
	IsRemoving     *bool
	IsWestPresent  *bool
	SourceRevision *string
	// Toolchains replaces the whole list when non-nil.
	Toolchains []Toolchain
}

// apply merges p over r.
func (p *Patch) apply(r *Record) {
	if p.ToolchainDir != nil {
		r.ToolchainDir = *p.ToolchainDir
	}
	if p.ClearProgress {
		r.Progress = nil
	} else if p.Progress != nil {
		v := *p.Progress
		r.Progress = &v
	}
	if p.IsInProcess != nil {
		r.IsInProcess = *p.IsInProcess
	}
	if p.IsCloning != nil {
		r.IsCloning = *p.IsCloning
	}
	if p.IsRemoving != nil {
		r.IsRemoving = *p.IsRemoving
	}
	if p.IsWestPresent != nil {
		r.IsWestPresent = *p.IsWestPresent
	}
	if p.SourceRevision != nil {
		r.SourceRevision = *p.SourceRevision
	}
	if p.Toolchains != nil {
		r.Toolchains = append([]Toolchain(nil), p.Toolchains...)
		sortToolchains(r.Toolchains)
	}
}

// Snapshot is what observers receive after every mutation.
type Snapshot struct {
	Environments []Record
	InProcess    bool
	// Dialog is the pending user-facing error message, if any.
	Dialog string
}

// Observer is notified with a fresh snapshot after each mutation.
// Observers must not mutate the store.
type Observer func(Snapshot)

// String returns a pointer to s.
func String(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to i.
func Int(i int) *int { return &i }
