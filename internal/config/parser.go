package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/platform"
	lua "github.com/yuin/gopher-lua"
)

// Parser evaluates settings files with platform detection.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new settings parser with the given platform detector.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseError represents a settings parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// ParseFile parses a settings file. Fields the file leaves out keep the
// values of base.
func (p *Parser) ParseFile(ctx context.Context, path string, base *Settings) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	return p.ParseString(ctx, string(data), base)
}

// ParseString parses settings from Lua source.
func (p *Parser) ParseString(ctx context.Context, luaCode string, base *Settings) (*Settings, error) {
	L := newSandboxedVM()
	defer L.Close()

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	settings := *base
	if err := extractSettings(L, &settings); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, &ParseError{
			Message: "settings validation failed",
			Detail:  err.Error(),
		}
	}
	return &settings, nil
}

// extractSettings reads the global envmgr table into s.
func extractSettings(L *lua.LState, s *Settings) error {
	global := L.GetGlobal(luaGlobalEnvmgr)
	if global.Type() == lua.LTNil {
		return nil
	}
	table, ok := global.(*lua.LTable)
	if !ok {
		return &ParseError{
			Message: "invalid 'envmgr' table",
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}

	var err error
	str := func(field string, dst *string) {
		if err != nil {
			return
		}
		switch v := table.RawGetString(field).(type) {
		case *lua.LNilType:
		case lua.LString:
			*dst = string(v)
		default:
			err = fieldTypeError(field, "string", v)
		}
	}
	seconds := func(field string, dst *time.Duration) {
		if err != nil {
			return
		}
		switch v := table.RawGetString(field).(type) {
		case *lua.LNilType:
		case lua.LNumber:
			*dst = time.Duration(float64(v) * float64(time.Second))
		default:
			err = fieldTypeError(field, "number of seconds", v)
		}
	}

	str(luaFieldInstallDir, &s.InstallDir)
	str(luaFieldIndexURL, &s.IndexURL)
	str(luaFieldToolchainBaseURL, &s.ToolchainBaseURL)
	str(luaFieldKeyring, &s.Keyring)
	str(luaFieldShell, &s.Shell)
	seconds(luaFieldHTTPTimeout, &s.HTTPTimeout)
	seconds(luaFieldManifestTimeout, &s.ManifestTimeout)
	if err != nil {
		return err
	}

	switch v := table.RawGetString(luaFieldCloneAfter).(type) {
	case *lua.LNilType:
	case lua.LBool:
		s.CloneAfterInstall = bool(v)
	default:
		return fieldTypeError(luaFieldCloneAfter, "boolean", v)
	}

	switch v := table.RawGetString(luaFieldRetries).(type) {
	case *lua.LNilType:
	case lua.LNumber:
		s.Retries = int(v)
	default:
		return fieldTypeError(luaFieldRetries, "number", v)
	}

	return nil
}

func fieldTypeError(field, want string, got lua.LValue) error {
	return &ParseError{
		Message: fmt.Sprintf("invalid '%s'", field),
		Detail:  fmt.Sprintf("expected %s, got %s", want, got.Type()),
	}
}

// LoadOptions configures Load.
type LoadOptions struct {
	// Path of the settings file; empty means DefaultPath().
	Path     string
	Detector platform.Detector
}

// Load resolves the effective settings: defaults, then the settings file
// when it exists, then environment overrides.
func Load(ctx context.Context, opts LoadOptions) (*Settings, error) {
	path := opts.Path
	if path == "" {
		path = DefaultPath()
	}

	settings := Defaults(DefaultInstallDir())
	if path != "" {
		parsed, err := NewParser(opts.Detector).ParseFile(ctx, path, settings)
		switch {
		case err == nil:
			settings = parsed
		case errors.Is(err, os.ErrNotExist) && opts.Path == "":
			// no settings file: defaults apply
		default:
			return nil, err
		}
	}

	if v := os.Getenv(EnvInstallDir); v != "" {
		settings.InstallDir = v
	}
	if v := os.Getenv(EnvIndexURL); v != "" {
		settings.IndexURL = v
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// DefaultPath returns $ENVMGR_CONFIG or <user config dir>/envmgr/envmgr.lua.
func DefaultPath() string {
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "envmgr", "envmgr.lua")
}

// DefaultInstallDir returns C:\ncs on Windows and ~/ncs elsewhere.
func DefaultInstallDir() string {
	if runtime.GOOS == "windows" {
		return `C:\ncs`
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "ncs"
	}
	return filepath.Join(home, "ncs")
}
