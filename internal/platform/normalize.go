package platform

import "strings"

// familyMap maps distribution names to their canonical family names.
var familyMap = map[string]string{
	"debian":   FamilyDebian,
	"ubuntu":   FamilyDebian,
	"rhel":     FamilyRHEL,
	"centos":   FamilyRHEL,
	"rocky":    FamilyRHEL,
	"fedora":   FamilyFedora,
	"suse":     FamilySUSE,
	"opensuse": FamilySUSE,
	"arch":     FamilyArch,
	"manjaro":  FamilyArch,
}

// normalizeArch converts GOARCH aliases to normalized names. Unknown
// architectures are passed through.
func normalizeArch(arch string) string {
	switch arch {
	case "amd64", "x86_64":
		return "amd64"
	case "arm64", "aarch64":
		return "arm64"
	default:
		return arch
	}
}

func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

func mapFamily(family string) string {
	if canonical, ok := familyMap[normalizePlatform(family)]; ok {
		return canonical
	}
	return FamilyUnknown
}
