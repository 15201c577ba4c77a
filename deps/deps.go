// Package deps downloads, builds, and installs third-party source
// dependencies through the same command contract the test runner uses.
package deps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/p4lang/ptf-runner/proc"
)

// Dependency describes one source dependency from the manifest.
type Dependency struct {
	URL     string `yaml:"url"`
	Version string `yaml:"version"`
	Flags   string `yaml:"flags"` // extra cmake configure flags
}

// Manifest maps dependency names to their source attributes.
type Manifest map[string]Dependency

// LoadManifest reads a yaml manifest file (eg. 'dependencies.yaml').
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("manifest %s lists no dependencies", path)
	}
	return m, nil
}

// Installer builds dependencies out of a manifest: download the source
// tarball, extract it, configure with cmake, build and install.
type Installer struct {
	Manifest   Manifest
	InstallDir string
	WorkDir    string // holds the per-dependency download and build trees
	Jobs       int
	Force      bool // rebuild even when pkg-config reports the version installed

	log log.Logger
	cmd *proc.CommandRunner
}

func NewInstaller(m Manifest, installDir, workDir string, jobs int, force bool, lg log.Logger) *Installer {
	return &Installer{
		Manifest:   m,
		InstallDir: installDir,
		WorkDir:    workDir,
		Jobs:       jobs,
		Force:      force,
		log:        lg,
		cmd:        proc.NewCommandRunner(lg),
	}
}

// Install builds and installs a single dependency by name.
func (i *Installer) Install(ctx context.Context, name string) error {
	dep, ok := i.Manifest[name]
	if !ok {
		return fmt.Errorf("dependency %s not in manifest", name)
	}
	if !i.Force && i.installed(ctx, name, dep.Version) {
		i.log.Info("dependency already installed", "dep", name, "version", dep.Version)
		return nil
	}

	archive, err := i.download(ctx, name, dep)
	if err != nil {
		return err
	}
	buildDir, err := i.extract(ctx, name, archive)
	if err != nil {
		return err
	}
	return i.build(ctx, name, dep, buildDir)
}

// installed checks the install prefix's pkg-config records for an exact
// version match.
func (i *Installer) installed(ctx context.Context, name, version string) bool {
	env := append(os.Environ(),
		"PKG_CONFIG_PATH="+filepath.Join(i.InstallDir, "lib", "pkgconfig"))
	res := i.cmd.Run(ctx, proc.Spec{
		Label: "pkg-config",
		Args:  []string{"pkg-config", "--exact-version", version, name},
		Env:   env,
	})
	return res.OK
}

func (i *Installer) download(ctx context.Context, name string, dep Dependency) (string, error) {
	dir := filepath.Join(i.WorkDir, "downloads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}
	archive := filepath.Join(dir, name+".tar.gz")
	if _, err := os.Stat(archive); err == nil {
		i.log.Debug("archive already downloaded", "dep", name, "path", archive)
		return archive, nil
	}

	i.log.Info("downloading", "dep", name, "url", dep.URL)
	res := i.cmd.Run(ctx, proc.Spec{
		Label: "wget",
		Args:  []string{"wget", dep.URL, "-nv", "-O", archive},
	})
	if !res.OK {
		return "", fmt.Errorf("downloading %s (exit code %d): %s", name, res.Code, strings.TrimSpace(res.Stderr))
	}
	return archive, nil
}

func (i *Installer) extract(ctx context.Context, name, archive string) (string, error) {
	srcDir := filepath.Join(i.WorkDir, "build", name)
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return "", fmt.Errorf("creating build dir: %w", err)
	}
	res := i.cmd.Run(ctx, proc.Spec{
		Label: "tar",
		Args:  []string{"tar", "xf", archive, "--strip-components", "1", "-C", srcDir},
	})
	if !res.OK {
		return "", fmt.Errorf("extracting %s (exit code %d)", name, res.Code)
	}

	buildDir := filepath.Join(srcDir, name+"_build")
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return "", fmt.Errorf("creating cmake build dir: %w", err)
	}
	return buildDir, nil
}

func (i *Installer) build(ctx context.Context, name string, dep Dependency, buildDir string) error {
	i.log.Info("configuring", "dep", name, "dir", buildDir)
	res := i.cmd.Run(ctx, proc.Spec{
		Label: "cmake-configure",
		Args:  i.ConfigureArgs(dep),
		Dir:   buildDir,
	})
	if !res.OK {
		return fmt.Errorf("configuring %s (exit code %d): %s", name, res.Code, strings.TrimSpace(res.Stderr))
	}

	i.log.Info("building and installing", "dep", name, "jobs", i.Jobs)
	res = i.cmd.Run(ctx, proc.Spec{
		Label: "cmake-build",
		Args:  i.BuildArgs(),
		Dir:   buildDir,
	})
	if !res.OK {
		return fmt.Errorf("building %s (exit code %d): %s", name, res.Code, strings.TrimSpace(res.Stderr))
	}
	i.log.Info("installed", "dep", name, "version", dep.Version, "prefix", i.InstallDir)
	return nil
}

// ConfigureArgs returns the cmake configure invocation for dep. The source
// tree sits one level above the build directory.
func (i *Installer) ConfigureArgs(dep Dependency) []string {
	args := []string{"cmake"}
	args = append(args, strings.Fields(dep.Flags)...)
	args = append(args,
		"-DCMAKE_CXX_STANDARD=17",
		"-DCMAKE_PREFIX_PATH="+i.InstallDir,
		"-DCMAKE_INSTALL_PREFIX="+i.InstallDir,
		"-DCMAKE_INSTALL_RPATH="+i.InstallDir,
		"-DCMAKE_POLICY_VERSION_MINIMUM=3.12",
		"-DBUILD_SHARED_LIBS=ON",
		"..",
	)
	return args
}

// BuildArgs returns the cmake build-and-install invocation.
func (i *Installer) BuildArgs() []string {
	return []string{
		"cmake", "--build", ".", "--target", "install", "--config", "Release",
		"--", "-j" + strconv.Itoa(i.Jobs),
	}
}
