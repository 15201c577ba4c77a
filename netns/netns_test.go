package netns

import (
	"regexp"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func TestDeriveName(t *testing.T) {
	tests := []struct {
		name      string
		workspace string
		want      string
	}{
		{
			name:      "uses suffix after last underscore",
			workspace: "ptf_runner_abc123",
			want:      "p4t_abc123",
		},
		{
			name:      "truncates long suffix to the name limit",
			workspace: "ptf_runner_0123456789abcdef",
			want:      "p4t_0123456789a",
		},
		{
			name:      "no underscore falls back to last 8 characters",
			workspace: "scratchdir42",
			want:      "p4t_tchdir42",
		},
		{
			name:      "short name without underscore kept whole",
			workspace: "abc",
			want:      "p4t_abc",
		},
		{
			name:      "suffix sanitized to placeholder when nothing survives",
			workspace: "ptf_runner_---",
			want:      "p4t_xxxx",
		},
		{
			name:      "trailing underscore falls back to tail of the name",
			workspace: "ptf_runner_",
			want:      "p4t_runner",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DeriveName(tt.workspace))
		})
	}
}

func TestDeriveNameAlwaysValid(t *testing.T) {
	valid := regexp.MustCompile(`^p4t_[a-zA-Z0-9]+$`)
	workspaces := []string{
		"ptf_runner_x9k2mvqp",
		"ptf_runner_ZZZZZZZZZZZZZZZZZZZZ",
		"a",
		"_",
		"___",
		"some.dir.with.dots",
		"mixed_Case_SUFFIX",
		"ptf_runner_12345678901234567890",
	}
	for _, ws := range workspaces {
		name := DeriveName(ws)
		require.LessOrEqual(t, len(name), MaxNameLen, "workspace %q", ws)
		require.Regexp(t, valid, name, "workspace %q", ws)
	}
}

func TestWrap(t *testing.T) {
	m := NewManager(nil, log.NewLogger(log.DiscardHandler()), "", nil)
	got := m.Wrap("p4t_abc123", "./run_p4_tests.sh", "-p", "switch")
	require.Equal(t, []string{
		"sudo", "-E", "ip", "netns", "exec", "p4t_abc123",
		"./run_p4_tests.sh", "-p", "switch",
	}, got)
}
