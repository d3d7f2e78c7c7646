package config

import (
	"fmt"
	"strings"
)

// Platform identifies the CI platform a fuzzing job runs on. It determines
// which deployment backend the job synchronizes artifacts with.
type Platform int

const (
	// PlatformUnknown is the zero value and is never valid.
	PlatformUnknown Platform = iota
	// PlatformInternalGenericCI is a public project built on a generic CI.
	PlatformInternalGenericCI
	// PlatformInternalGitHub is a public project built on GitHub Actions.
	PlatformInternalGitHub
	// PlatformExternalGenericCI is a standalone project on a generic CI.
	PlatformExternalGenericCI
	// PlatformExternalGitHub is a standalone project on GitHub Actions.
	PlatformExternalGitHub
)

// CI systems accepted by the ci_system option.
const (
	CISystemGitHub  = "github"
	CISystemGeneric = "generic"
)

var platformNames = map[Platform]string{
	PlatformInternalGenericCI: "internal-generic-ci",
	PlatformInternalGitHub:    "internal-github",
	PlatformExternalGenericCI: "external-generic-ci",
	PlatformExternalGitHub:    "external-github",
}

// String returns the configuration name of the platform.
func (p Platform) String() string {
	if name, ok := platformNames[p]; ok {
		return name
	}

	return fmt.Sprintf("unknown(%d)", int(p))
}

// Platforms returns every defined platform in declaration order.
func Platforms() []Platform {
	return []Platform{
		PlatformInternalGenericCI,
		PlatformInternalGitHub,
		PlatformExternalGenericCI,
		PlatformExternalGitHub,
	}
}

// ParsePlatform parses a platform from its configuration name.
// Underscores are accepted in place of dashes.
func ParsePlatform(name string) (Platform, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")

	for p, n := range platformNames {
		if n == normalized {
			return p, nil
		}
	}

	return PlatformUnknown, fmt.Errorf("unknown platform %q", name)
}

// DerivePlatform determines the platform from the CI system and whether
// the job belongs to a public project.
func DerivePlatform(ciSystem, projectName string) (Platform, error) {
	internal := projectName != ""

	switch strings.ToLower(ciSystem) {
	case CISystemGitHub:
		if internal {
			return PlatformInternalGitHub, nil
		}

		return PlatformExternalGitHub, nil
	case CISystemGeneric, "":
		if internal {
			return PlatformInternalGenericCI, nil
		}

		return PlatformExternalGenericCI, nil
	default:
		return PlatformUnknown, fmt.Errorf("unknown ci system %q", ciSystem)
	}
}
