package config

import "time"

// Lua schema field names and globals
const (
	luaGlobalEnvmgr          = "envmgr"
	luaFieldInstallDir       = "install_dir"
	luaFieldIndexURL         = "index_url"
	luaFieldToolchainBaseURL = "toolchain_base_url"
	luaFieldHTTPTimeout      = "http_timeout"
	luaFieldManifestTimeout  = "manifest_timeout"
	luaFieldCloneAfter       = "clone_after_install"
	luaFieldKeyring          = "keyring"
	luaFieldShell            = "shell"
	luaFieldRetries          = "retries"
)

// Environment variable overrides
const (
	EnvConfigPath = "ENVMGR_CONFIG"
	EnvInstallDir = "ENVMGR_INSTALL_DIR"
	EnvIndexURL   = "ENVMGR_INDEX_URL"
)

// Defaults
const (
	DefaultIndexURL        = "https://developer.nordicsemi.com/.pc-tools/toolchain/index.json"
	DefaultHTTPTimeout     = 10 * time.Minute
	DefaultManifestTimeout = 30 * time.Second
	MaxRetries             = 10
)
