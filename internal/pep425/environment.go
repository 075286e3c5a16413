package pep425

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Environment describes the target a resolution run selects wheels for.
// Zero-value fields fall back to defaults derived from the host.
type Environment struct {
	// Platforms are requested platform tags, most specific first.
	Platforms []string
	// PythonVersion is the target interpreter version: "3", "27", "39",
	// "310", or dotted "3.10".
	PythonVersion string
	// Implementation is the interpreter short name ("cp", "pp", "ip",
	// "jy", or any custom two-letter name).
	Implementation string
	// ABIs are explicit ABI tags. Empty derives the default for the
	// implementation.
	ABIs []string
}

// Overridden reports whether any field deviates from the host defaults.
// Cross-environment resolution needs source builds ruled out, so callers
// gate on this before allowing dependency resolution.
func (e Environment) Overridden() bool {
	return len(e.Platforms) > 0 || e.PythonVersion != "" ||
		e.Implementation != "" || len(e.ABIs) > 0
}

// pythonVersion is a parsed target version. minor is -1 when only the
// major version was given.
type pythonVersion struct {
	major int
	minor int
}

func (v pythonVersion) nodot() string {
	if v.minor < 0 {
		return strconv.Itoa(v.major)
	}
	return fmt.Sprintf("%d%d", v.major, v.minor)
}

// parsePythonVersion accepts "3", "27", "39", "310", and dotted forms
// like "3.10". In the undotted form the first digit is the major version.
func parsePythonVersion(s string) (pythonVersion, error) {
	if s == "" {
		return pythonVersion{major: 3, minor: -1}, nil
	}
	var parts []string
	if strings.Contains(s, ".") {
		parts = strings.SplitN(s, ".", 3)[:2]
	} else if len(s) == 1 {
		parts = []string{s}
	} else {
		parts = []string{s[:1], s[1:]}
	}

	v := pythonVersion{minor: -1}
	var err error
	if v.major, err = strconv.Atoi(parts[0]); err != nil {
		return pythonVersion{}, fmt.Errorf("invalid python version: %q", s)
	}
	if len(parts) == 2 {
		if v.minor, err = strconv.Atoi(parts[1]); err != nil {
			return pythonVersion{}, fmt.Errorf("invalid python version: %q", s)
		}
	}
	return v, nil
}

// Supported computes the ordered tag set for the environment, most
// preferred first:
//
//   - {impl}{ver}-{abi}-{platform} for each explicit or derived ABI
//   - {impl}{ver}-abi3-{platform} down through older minors (CPython)
//   - {impl}{ver}-none-{platform}
//   - py{ver}-none-{platform} down through older minors
//   - {impl}{ver}-none-any, py{ver}-none-any, py{major}-none-any, ...
//
// The trailing "any" rows mean universal wheels match every environment.
func Supported(env Environment) (TagSet, error) {
	version, err := parsePythonVersion(env.PythonVersion)
	if err != nil {
		return TagSet{}, err
	}
	impl := env.Implementation
	if impl == "" {
		impl = "cp"
	}
	platforms := expandPlatforms(env.Platforms)

	interpreter := impl + version.nodot()
	var tags []Tag
	if impl == "cp" {
		tags = cpythonTags(version, interpreter, env.ABIs, platforms)
	} else {
		tags = genericTags(interpreter, env.ABIs, platforms)
	}
	tags = append(tags, compatibleTags(version, interpreter, platforms)...)
	return NewTagSet(tags), nil
}

func cpythonTags(version pythonVersion, interpreter string, abis, platforms []string) []Tag {
	if len(abis) == 0 && version.minor >= 0 {
		abis = []string{interpreter}
	}
	// abi3 and none get dedicated rows below.
	filtered := abis[:0:0]
	for _, abi := range abis {
		if abi != "abi3" && abi != "none" {
			filtered = append(filtered, abi)
		}
	}

	var tags []Tag
	for _, abi := range filtered {
		for _, plat := range platforms {
			tags = append(tags, Tag{interpreter, abi, plat})
		}
	}
	abi3 := version.major == 3 && version.minor >= 2
	if abi3 {
		for _, plat := range platforms {
			tags = append(tags, Tag{interpreter, "abi3", plat})
		}
	}
	for _, plat := range platforms {
		tags = append(tags, Tag{interpreter, "none", plat})
	}
	if abi3 {
		// Stable-ABI wheels built for older minors still load.
		for minor := version.minor - 1; minor >= 2; minor-- {
			older := fmt.Sprintf("cp%d%d", version.major, minor)
			for _, plat := range platforms {
				tags = append(tags, Tag{older, "abi3", plat})
			}
		}
	}
	return tags
}

func genericTags(interpreter string, abis, platforms []string) []Tag {
	if len(abis) == 0 {
		abis = []string{"none"}
	}
	var tags []Tag
	sawNone := false
	for _, abi := range abis {
		if abi == "none" {
			sawNone = true
		}
		for _, plat := range platforms {
			tags = append(tags, Tag{interpreter, abi, plat})
		}
	}
	if !sawNone {
		for _, plat := range platforms {
			tags = append(tags, Tag{interpreter, "none", plat})
		}
	}
	return tags
}

func compatibleTags(version pythonVersion, interpreter string, platforms []string) []Tag {
	var tags []Tag
	for _, py := range pyInterpreterRange(version) {
		for _, plat := range platforms {
			tags = append(tags, Tag{py, "none", plat})
		}
	}
	tags = append(tags, Tag{interpreter, "none", "any"})
	for _, py := range pyInterpreterRange(version) {
		tags = append(tags, Tag{py, "none", "any"})
	}
	return tags
}

// pyInterpreterRange yields py{nodot}, py{major}, then each older minor in
// descending order.
func pyInterpreterRange(version pythonVersion) []string {
	var out []string
	if version.minor >= 0 {
		out = append(out, "py"+version.nodot())
	}
	out = append(out, fmt.Sprintf("py%d", version.major))
	for minor := version.minor - 1; minor >= 0; minor-- {
		out = append(out, fmt.Sprintf("py%d%d", version.major, minor))
	}
	return out
}

// expandPlatforms widens each requested platform to the platforms whose
// wheels can run on it, preserving request order and dropping duplicates.
// Unknown platform strings stay exact-match only.
func expandPlatforms(platforms []string) []string {
	if len(platforms) == 0 {
		platforms = hostPlatforms()
	}
	seen := make(map[string]bool)
	var out []string
	for _, p := range platforms {
		for _, expanded := range expandPlatform(p) {
			if !seen[expanded] {
				seen[expanded] = true
				out = append(out, expanded)
			}
		}
	}
	return out
}

func expandPlatform(platform string) []string {
	switch {
	case strings.HasPrefix(platform, "macosx_"):
		return macosPlatforms(platform)
	case strings.HasPrefix(platform, "manylinux"):
		return manylinuxPlatforms(platform)
	default:
		return []string{platform}
	}
}

// manylinuxPlatforms maps a manylinux request to every older baseline a
// wheel could have been built against. A newer baseline host runs older
// baseline wheels; the reverse never holds, and plain linux_* tags stay
// exact.
func manylinuxPlatforms(platform string) []string {
	if arch, ok := strings.CutPrefix(platform, "manylinux2014_"); ok {
		return []string{platform, "manylinux2010_" + arch, "manylinux1_" + arch}
	}
	if arch, ok := strings.CutPrefix(platform, "manylinux2010_"); ok {
		return []string{platform, "manylinux1_" + arch}
	}
	if rest, ok := strings.CutPrefix(platform, "manylinux_"); ok {
		return perennialManylinux(rest)
	}
	return []string{platform}
}

// perennialManylinux expands "X_Y_arch" down through older glibc minors,
// inserting the legacy aliases at their equivalence points (2_17 is
// manylinux2014, 2_12 is manylinux2010, 2_5 is manylinux1).
func perennialManylinux(rest string) []string {
	parts := strings.SplitN(rest, "_", 3)
	if len(parts) != 3 {
		return []string{"manylinux_" + rest}
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	arch := parts[2]
	if err1 != nil || err2 != nil || major != 2 {
		return []string{"manylinux_" + rest}
	}

	var out []string
	for m := minor; m >= 5; m-- {
		out = append(out, fmt.Sprintf("manylinux_%d_%d_%s", major, m, arch))
		switch m {
		case 17:
			out = append(out, "manylinux2014_"+arch)
		case 12:
			out = append(out, "manylinux2010_"+arch)
		case 5:
			out = append(out, "manylinux1_"+arch)
		}
	}
	return out
}

// macosPlatforms walks a macosx_{major}_{minor}_{arch} request down
// through the OS versions whose wheels still run on it, widening the
// architecture to the fat binary formats that contain it.
func macosPlatforms(platform string) []string {
	parts := strings.SplitN(strings.TrimPrefix(platform, "macosx_"), "_", 3)
	if len(parts) != 3 {
		return []string{platform}
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	arch := parts[2]
	if err1 != nil || err2 != nil {
		return []string{platform}
	}

	var out []string
	add := func(maj, min int) {
		for _, format := range macosBinaryFormats(arch) {
			out = append(out, fmt.Sprintf("macosx_%d_%d_%s", maj, min, format))
		}
	}
	if major >= 11 {
		// From Big Sur on only major versions matter, then the 10.x
		// series continues below.
		for m := major; m >= 11; m-- {
			add(m, 0)
		}
		for m := 16; m >= 4; m-- {
			add(10, m)
		}
	} else {
		for m := minor; m >= 4; m-- {
			add(major, m)
		}
	}
	return out
}

func macosBinaryFormats(arch string) []string {
	switch arch {
	case "x86_64":
		return []string{arch, "intel", "fat64", "fat32", "universal2", "universal"}
	case "arm64":
		return []string{arch, "universal2"}
	case "i386":
		return []string{arch, "intel", "fat32", "universal"}
	default:
		return []string{arch}
	}
}

// hostPlatforms guesses a platform list for the build host. Resolution for
// the host is the uncommon path for a cross-downloading tool, so the table
// stays small.
func hostPlatforms() []string {
	arch := map[string]string{"amd64": "x86_64", "386": "i686", "arm64": "aarch64"}[runtime.GOARCH]
	if arch == "" {
		arch = runtime.GOARCH
	}
	switch runtime.GOOS {
	case "linux":
		return []string{"manylinux2014_" + arch, "linux_" + arch}
	case "darwin":
		if arch == "aarch64" {
			arch = "arm64"
		}
		return []string{"macosx_11_0_" + arch}
	case "windows":
		if arch == "x86_64" {
			return []string{"win_amd64"}
		}
		return []string{"win32"}
	default:
		return []string{runtime.GOOS + "_" + arch}
	}
}
