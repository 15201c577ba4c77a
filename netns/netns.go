// Package netns manages the network namespace that sandboxes a test run:
// deterministic name derivation, creation, command execution inside the
// namespace, and best-effort destruction.
package netns

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/p4lang/ptf-runner/proc"
)

const (
	// Prefix marks namespaces created by this tool so a stray run is easy to
	// identify and sweep by hand.
	Prefix = "p4t"

	// MaxNameLen bounds namespace names. Interface names derived from the
	// namespace share the kernel's 15 character limit.
	MaxNameLen = 15

	// placeholder stands in for a suffix that sanitization stripped entirely.
	placeholder = "xxxx"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// DeriveName builds the namespace name for a run from the base name of its
// scratch workspace. The unique suffix after the workspace name's last
// underscore keeps the namespace unique per run; names without an
// underscore-separated suffix fall back to their last 8 characters.
func DeriveName(workspace string) string {
	parts := strings.Split(workspace, "_")
	suffix := parts[len(parts)-1]
	if len(parts) == 1 || suffix == "" {
		suffix = workspace
		if len(workspace) > 8 {
			suffix = workspace[len(workspace)-8:]
		}
	}

	suffix = nonAlnum.ReplaceAllString(suffix, "")
	if suffix == "" {
		suffix = placeholder
	}

	avail := MaxNameLen - len(Prefix) - 1
	if avail < 1 {
		return Prefix[:min(len(Prefix), MaxNameLen)]
	}
	if len(suffix) > avail {
		suffix = suffix[:avail]
	}
	return Prefix + "_" + suffix
}

// Manager creates and destroys one run's network namespace and wraps
// commands for execution inside it. All commands run in the run's scratch
// directory with its environment.
type Manager struct {
	log log.Logger
	cmd *proc.CommandRunner
	dir string
	env []string
}

func NewManager(cmd *proc.CommandRunner, lg log.Logger, dir string, env []string) *Manager {
	return &Manager{log: lg, cmd: cmd, dir: dir, env: env}
}

// Create adds the named namespace.
func (m *Manager) Create(ctx context.Context, name string) proc.Result {
	m.log.Info("creating network namespace", "netns", name)
	return m.cmd.Run(ctx, proc.Spec{
		Label: "netns-add",
		Args:  []string{"sudo", "ip", "netns", "add", name},
		Dir:   m.dir,
		Env:   m.env,
	})
}

// Wrap prefixes argv so it executes inside the named namespace with the
// caller's environment preserved.
func (m *Manager) Wrap(name string, argv ...string) []string {
	return append([]string{"sudo", "-E", "ip", "netns", "exec", name}, argv...)
}

// Exec runs argv synchronously inside the named namespace.
func (m *Manager) Exec(ctx context.Context, name string, argv ...string) proc.Result {
	return m.cmd.Run(ctx, proc.Spec{
		Label: filepath.Base(argv[0]),
		Args:  m.Wrap(name, argv...),
		Dir:   m.dir,
		Env:   m.env,
	})
}

// Delete kills anything still running inside the namespace, then removes the
// namespace itself. Both steps are best-effort: a namespace that is already
// gone is logged, never escalated.
func (m *Manager) Delete(ctx context.Context, name string) {
	pids := m.cmd.Run(ctx, proc.Spec{
		Label: "netns-pids",
		Args:  []string{"sudo", "ip", "netns", "pids", name},
		Dir:   m.dir,
		Env:   m.env,
	})
	if pids.OK {
		for _, pid := range strings.Fields(pids.Stdout) {
			kill := m.cmd.Run(ctx, proc.Spec{
				Label: "netns-kill",
				Args:  []string{"sudo", "kill", pid},
				Dir:   m.dir,
				Env:   m.env,
			})
			if !kill.OK {
				m.log.Warn("failed to kill process in namespace (it may already be gone)",
					"netns", name, "pid", pid)
			}
		}
	}

	m.log.Info("deleting network namespace", "netns", name)
	res := m.cmd.Run(ctx, proc.Spec{
		Label: "netns-delete",
		Args:  []string{"sudo", "ip", "netns", "delete", name},
		Dir:   m.dir,
		Env:   m.env,
	})
	if !res.OK {
		m.log.Warn(fmt.Sprintf("failed to delete network namespace %q (it may already be gone)", name))
		return
	}
	m.log.Debug("deleted network namespace", "netns", name)
}
