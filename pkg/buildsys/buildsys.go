// Package buildsys classifies a checkout into a build ecosystem by
// probing for characteristic marker files and supplies the default
// build, test and install commands for the classification.
package buildsys

import (
	"os"
	"path/filepath"
)

// System is one build ecosystem from the fixed classification set.
type System string

const (
	SystemBun     System = "bun"
	SystemPnpm    System = "pnpm"
	SystemYarn    System = "yarn"
	SystemNpm     System = "npm"
	SystemCargo   System = "cargo"
	SystemGo      System = "go"
	SystemMaven   System = "maven"
	SystemGradle  System = "gradle"
	SystemCMake   System = "cmake"
	SystemMake    System = "make"
	SystemPython  System = "python"
	SystemUnknown System = "unknown"
)

// probes in priority order. Lockfiles outrank package.json so the
// right node package manager wins; language toolchains follow; generic
// make/cmake come last.
var probes = []struct {
	marker string
	system System
}{
	{"bun.lockb", SystemBun},
	{"pnpm-lock.yaml", SystemPnpm},
	{"yarn.lock", SystemYarn},
	{"package.json", SystemNpm},
	{"Cargo.toml", SystemCargo},
	{"go.mod", SystemGo},
	{"pom.xml", SystemMaven},
	{"build.gradle", SystemGradle},
	{"build.gradle.kts", SystemGradle},
	{"CMakeLists.txt", SystemCMake},
	{"Makefile", SystemMake},
	{"pyproject.toml", SystemPython},
}

// Detect classifies the checkout at path. Returns SystemUnknown when
// no marker matches.
func Detect(path string) System {
	for _, probe := range probes {
		if _, err := os.Stat(filepath.Join(path, probe.marker)); err == nil {
			return probe.system
		}
	}

	return SystemUnknown
}

// BuildCommand returns the default build command line for the system.
func (s System) BuildCommand() string {
	switch s {
	case SystemBun:
		return "bun run build"
	case SystemPnpm:
		return "pnpm run build"
	case SystemYarn:
		return "yarn build"
	case SystemNpm:
		return "npm run build"
	case SystemCargo:
		return "cargo build --release"
	case SystemGo:
		return "go build ./..."
	case SystemMaven:
		return "mvn package"
	case SystemGradle:
		return "gradle build"
	case SystemCMake:
		return "cmake -B build && cmake --build build"
	case SystemMake:
		return "make"
	case SystemPython:
		return "python -m build"
	default:
		return ""
	}
}

// TestCommand returns the default test command line for the system.
func (s System) TestCommand() string {
	switch s {
	case SystemBun:
		return "bun test"
	case SystemPnpm:
		return "pnpm test"
	case SystemYarn:
		return "yarn test"
	case SystemNpm:
		return "npm test"
	case SystemCargo:
		return "cargo test"
	case SystemGo:
		return "go test ./..."
	case SystemMaven:
		return "mvn test"
	case SystemGradle:
		return "gradle test"
	case SystemCMake, SystemMake:
		return "make test"
	case SystemPython:
		return "pytest"
	default:
		return ""
	}
}

// InstallCommand returns the dependency installation command used by
// the container backend's first-use auto-install.
func (s System) InstallCommand() string {
	switch s {
	case SystemBun:
		return "bun install"
	case SystemPnpm:
		return "pnpm install"
	case SystemYarn:
		return "yarn install"
	case SystemNpm:
		return "npm install"
	case SystemCargo:
		return "cargo fetch"
	case SystemGo:
		return "go mod download"
	case SystemMaven:
		return "mvn dependency:go-offline"
	case SystemGradle:
		return "gradle dependencies"
	case SystemPython:
		return "pip install -e ."
	default:
		return ""
	}
}
