package shell

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestForToolchain(t *testing.T) {
	envDir := t.TempDir()
	toolchainDir := filepath.Join(envDir, "toolchain")
	for _, dir := range []string{"bin", "usr/bin", "opt/zephyr-sdk/arm-zephyr-eabi/bin"} {
		if err := os.MkdirAll(filepath.Join(toolchainDir, filepath.FromSlash(dir)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(envDir, "zephyr"), 0o755); err != nil {
		t.Fatal(err)
	}

	env := ForToolchain("v2.5.0", toolchainDir, false)

	wantPath := []string{
		filepath.Join(toolchainDir, "bin"),
		filepath.Join(toolchainDir, "usr", "bin"),
		filepath.Join(toolchainDir, "opt", "zephyr-sdk", "arm-zephyr-eabi", "bin"),
	}
	if strings.Join(env.PathPrepend, "|") != strings.Join(wantPath, "|") {
		t.Errorf("PathPrepend = %v, want %v", env.PathPrepend, wantPath)
	}
	if env.PathSeparator != ":" {
		t.Errorf("PathSeparator = %q", env.PathSeparator)
	}

	vars := map[string]string{}
	for _, v := range env.Vars {
		vars[v.Name] = v.Value
	}
	want := map[string]string{
		EnvEnvironment:      "v2.5.0",
		EnvToolchainDir:     toolchainDir,
		EnvZephyrSDK:        filepath.Join(toolchainDir, "opt", "zephyr-sdk"),
		EnvToolchainVariant: "zephyr",
		EnvZephyrBase:       filepath.Join(envDir, "zephyr"),
	}
	for name, value := range want {
		if vars[name] != value {
			t.Errorf("%s = %q, want %q", name, vars[name], value)
		}
	}
}

func TestForToolchain_NotCloned(t *testing.T) {
	toolchainDir := filepath.Join(t.TempDir(), "toolchain")

	env := ForToolchain("v2.5.0", toolchainDir, true)

	if len(env.PathPrepend) != 0 {
		t.Errorf("PathPrepend = %v, want none", env.PathPrepend)
	}
	if env.PathSeparator != ";" {
		t.Errorf("PathSeparator = %q, want ;", env.PathSeparator)
	}
	for _, v := range env.Vars {
		if v.Name == EnvZephyrBase || v.Name == EnvZephyrSDK {
			t.Errorf("%s set without the directory", v.Name)
		}
	}
}

func TestRender(t *testing.T) {
	env := Env{
		Vars:          []Var{{Name: EnvEnvironment, Value: "v2.5.0"}},
		PathPrepend:   []string{"/ncs/a/bin", "/ncs/b/bin"},
		PathSeparator: ":",
	}

	tests := []struct {
		name  string
		shell ShellType
		want  string
	}{
		{
			name:  "bash",
			shell: ShellBash,
			want:  "export ENVMGR_ENVIRONMENT='v2.5.0';\nexport PATH='/ncs/a/bin:/ncs/b/bin:'\"$PATH\";\n",
		},
		{
			name:  "zsh",
			shell: ShellZsh,
			want:  "export ENVMGR_ENVIRONMENT='v2.5.0';\nexport PATH='/ncs/a/bin:/ncs/b/bin:'\"$PATH\";\n",
		},
		{
			name:  "fish",
			shell: ShellFish,
			want:  "set -gx ENVMGR_ENVIRONMENT 'v2.5.0';\nset -gx PATH '/ncs/a/bin' '/ncs/b/bin' $PATH;\n",
		},
		{
			name:  "powershell",
			shell: ShellPowerShell,
			want:  "$env:ENVMGR_ENVIRONMENT = 'v2.5.0'\n$env:PATH = '/ncs/a/bin:/ncs/b/bin:' + $env:PATH\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.shell, env)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Render() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestRender_UnsupportedShell(t *testing.T) {
	if _, err := Render(ShellUnknown, Env{}); err == nil {
		t.Error("Render() accepted an unknown shell")
	}
}

// Paths come from the filesystem; none of them may break out of the quotes.
func TestRender_Quoting(t *testing.T) {
	hostile := `/ncs/it's $(rm -rf ~) \ ` + "`x`"

	tests := []struct {
		shell ShellType
		want  string
	}{
		{ShellBash, `'/ncs/it'\''s $(rm -rf ~) \ ` + "`x`'"},
		{ShellFish, `'/ncs/it\'s $(rm -rf ~) \\ ` + "`x`'"},
		{ShellPowerShell, `'/ncs/it''s $(rm -rf ~) \ ` + "`x`'"},
	}

	for _, tt := range tests {
		t.Run(tt.shell.String(), func(t *testing.T) {
			got, err := Render(tt.shell, Env{Vars: []Var{{Name: EnvToolchainDir, Value: hostile}}})
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("Render() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
