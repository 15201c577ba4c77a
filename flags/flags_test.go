package flags

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestUniqueFlags asserts that no flag names or env vars collide.
func TestUniqueFlags(t *testing.T) {
	seenNames := map[string]struct{}{}
	seenEnvVars := map[string]struct{}{}
	for _, flag := range Flags {
		name := flag.Names()[0]
		_, ok := seenNames[name]
		require.False(t, ok, "duplicate flag name %s", name)
		seenNames[name] = struct{}{}

		envFlag, ok := flag.(interface{ GetEnvVars() []string })
		if !ok {
			continue
		}
		for _, envVar := range envFlag.GetEnvVars() {
			_, ok := seenEnvVars[envVar]
			require.False(t, ok, "duplicate env var %s", envVar)
			seenEnvVars[envVar] = struct{}{}
		}
	}
}

// TestSDEFlagsUseBareEnvVars pins the SDE path flags to the unprefixed
// environment variables every SDE workflow exports.
func TestSDEFlagsUseBareEnvVars(t *testing.T) {
	require.Equal(t, []string{"SDE_INSTALL"}, SDEInstall.EnvVars)
	require.Equal(t, []string{"SDE"}, SDE.EnvVars)
}

// TestOptionalFlagsUsePrefix asserts every other env-backed flag carries the
// PTF_RUNNER prefix.
func TestOptionalFlagsUsePrefix(t *testing.T) {
	for _, flag := range optionalFlags {
		envFlag, ok := flag.(interface{ GetEnvVars() []string })
		if !ok {
			continue
		}
		for _, envVar := range envFlag.GetEnvVars() {
			require.True(t, strings.HasPrefix(envVar, EnvVarPrefix+"_"),
				"flag %s env var %s must start with %s", flag.Names()[0], envVar, EnvVarPrefix)
		}
	}
}

// TestFlagsNotMarkedRequired asserts required-ness is enforced through
// CheckRequired rather than urfave's Required, so env-only invocations work.
func TestFlagsNotMarkedRequired(t *testing.T) {
	for _, flag := range Flags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok, "flag %s cannot report required-ness", flag.Names()[0])
		require.False(t, reqFlag.IsRequired(), "flag %s must not be marked required", flag.Names()[0])
	}
}

func TestRequiredFlagsListed(t *testing.T) {
	names := []string{}
	for _, flag := range requiredFlags {
		names = append(names, flag.Names()[0])
	}
	require.True(t, slices.Contains(names, SDEInstall.Name))
	require.True(t, slices.Contains(names, SDE.Name))
}
