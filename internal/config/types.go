// Package config parses the envmgr settings file.
//
// Settings are written in Lua and evaluated in a sandboxed gopher-lua VM
// with a read-only platform table injected, so a single file can carry
// per-OS values:
//
//	envmgr = {
//	    install_dir = platform.is_windows and "C:\\ncs" or "/opt/ncs",
//	    http_timeout = 900,
//	    clone_after_install = true,
//	}
//
// Missing fields take their defaults; ENVMGR_INSTALL_DIR and
// ENVMGR_INDEX_URL override the file.
package config

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// Settings is the effective envmgr configuration.
type Settings struct {
	// InstallDir is the root holding <version>/toolchain and downloads/.
	InstallDir string `json:"install_dir" yaml:"install_dir"`
	// IndexURL is the remote JSON manifest of environments.
	IndexURL string `json:"index_url" yaml:"index_url"`
	// ToolchainBaseURL prefixes archive names; defaults to the directory of IndexURL.
	ToolchainBaseURL string `json:"toolchain_base_url" yaml:"toolchain_base_url"`
	// HTTPTimeout bounds a whole archive download.
	HTTPTimeout time.Duration `json:"http_timeout" yaml:"http_timeout"`
	// ManifestTimeout bounds the manifest request.
	ManifestTimeout time.Duration `json:"manifest_timeout" yaml:"manifest_timeout"`
	// CloneAfterInstall runs the SDK clone step after extraction.
	CloneAfterInstall bool `json:"clone_after_install" yaml:"clone_after_install"`
	// Keyring is an OpenPGP keyring used to verify <index_url>.sig. Empty disables the check.
	Keyring string `json:"keyring,omitempty" yaml:"keyring,omitempty"`
	// Shell overrides the shell launcher used for terminals and cloning.
	Shell string `json:"shell,omitempty" yaml:"shell,omitempty"`
	// Retries is the number of download retries for transport errors.
	Retries int `json:"retries" yaml:"retries"`
}

// Defaults returns the settings used when no file is present.
func Defaults(installDir string) *Settings {
	return &Settings{
		InstallDir:        installDir,
		IndexURL:          DefaultIndexURL,
		HTTPTimeout:       DefaultHTTPTimeout,
		ManifestTimeout:   DefaultManifestTimeout,
		CloneAfterInstall: true,
	}
}

// ArchiveURL returns the download URL of a toolchain archive.
func (s *Settings) ArchiveURL(name string) string {
	base := s.ToolchainBaseURL
	if base == "" {
		base = indexDir(s.IndexURL)
	}
	return strings.TrimRight(base, "/") + "/" + name
}

// indexDir returns the URL of the directory containing the index.
func indexDir(indexURL string) string {
	u, err := url.Parse(indexURL)
	if err != nil || u.Path == "" {
		return strings.TrimRight(indexURL, "/")
	}
	u.Path = path.Dir(u.Path)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Validate checks the settings for obvious errors.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.InstallDir) == "" {
		return fmt.Errorf("install_dir is required")
	}
	if err := validateHTTPURL(luaFieldIndexURL, s.IndexURL); err != nil {
		return err
	}
	if s.ToolchainBaseURL != "" {
		if err := validateHTTPURL(luaFieldToolchainBaseURL, s.ToolchainBaseURL); err != nil {
			return err
		}
	}
	if s.HTTPTimeout < 0 || s.ManifestTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if s.Retries < 0 || s.Retries > MaxRetries {
		return fmt.Errorf("retries must be between 0 and %d, got %d", MaxRetries, s.Retries)
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host: %q", field, raw)
	}
	return nil
}
