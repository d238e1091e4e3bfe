package shell

// Environment variable names set by activation scripts
const (
	// EnvEnvironment names the active environment version
	EnvEnvironment = "ENVMGR_ENVIRONMENT"

	// EnvToolchainDir is the toolchain directory of the active environment
	EnvToolchainDir = "ENVMGR_TOOLCHAIN_DIR"

	// EnvZephyrBase points at the SDK sources, when cloned
	EnvZephyrBase = "ZEPHYR_BASE"

	// EnvZephyrSDK is the Zephyr SDK shipped inside the toolchain
	EnvZephyrSDK = "ZEPHYR_SDK_INSTALL_DIR"

	// EnvToolchainVariant selects the Zephyr SDK toolchain
	EnvToolchainVariant = "ZEPHYR_TOOLCHAIN_VARIANT"
)

// toolchainBinDirs are the directories below a toolchain that hold
// executables, in PATH order.
var toolchainBinDirs = []string{
	"bin",
	"usr/bin",
	"usr/local/bin",
	"opt/bin",
	"opt/nanopb/generator-bin",
	"opt/zephyr-sdk/arm-zephyr-eabi/bin",
	"opt/zephyr-sdk/riscv64-zephyr-elf/bin",
	"mingw64/bin",
}
