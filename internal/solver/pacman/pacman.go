// Package pacman implements the pacman solver backend. It is much
// thinner than the DNF backends: pacman has no resolver library worth
// driving directly, so the backend shells out to the pacman binary
// against a private root prepared under the cache directory.
package pacman

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/osbuild-depsolve/internal/solver"
)

const configurationTemplate = `
[options]
Architecture = %s
CheckSpace
SigLevel    = Required DatabaseOptional
LocalFileSigLevel = Optional
`

const repositoryTemplate = `
[%s]
Server = %s
`

// printFormat asks pacman for one tab-separated line per selected
// package: name, version, download URL. Tabs cannot appear in any of
// the three fields, so splitting is safe where a hand-built JSON
// format would not be.
const printFormat = "%n\t%v\t%l"

// Solver resolves packages with the pacman binary.
type Solver struct {
	config solver.Config

	cachePath  string
	configPath string

	pacmanCmd []string
}

// New constructs a pacman solver. The pacman root lives under the
// request's cache directory.
func New(config solver.Config) (*Solver, error) {
	for _, repo := range config.Repos {
		if len(repo.BaseURLs) == 0 {
			return nil, solver.InvalidRequestError("Repository '%s' must have a baseurl for the pacman backend", repo.ID)
		}
	}

	return &Solver{
		config:     config,
		cachePath:  config.CacheDir,
		configPath: filepath.Join(config.CacheDir, "etc", "pacman.conf"),
		pacmanCmd:  []string{"pacman"},
	}, nil
}

func (s *Solver) Name() string {
	return "pacman"
}

// SetPacmanCommand overrides the pacman binary, used by tests.
func (s *Solver) SetPacmanCommand(cmd ...string) {
	s.pacmanCmd = cmd
}

// prepareRoot creates the directories pacman needs and writes a
// configuration file listing the request repositories.
func (s *Solver) prepareRoot() error {
	for _, dir := range []string{filepath.Dir(s.configPath), filepath.Join(s.cachePath, "var/lib/pacman")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return solver.InternalError("error preparing pacman root: %v", err)
		}
	}

	var config strings.Builder
	fmt.Fprintf(&config, configurationTemplate, s.config.Arch)
	for _, repo := range s.config.Repos {
		fmt.Fprintf(&config, repositoryTemplate, repo.ID, repo.BaseURLs[0])
	}

	if err := os.WriteFile(s.configPath, []byte(config.String()), 0644); err != nil {
		return solver.InternalError("error writing pacman configuration: %v", err)
	}
	return nil
}

func (s *Solver) runPacman(args ...string) ([]byte, error) {
	argv := append(append([]string{}, s.pacmanCmd...), args...)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logrus.Debugf("running %s", strings.Join(argv, " "))
	if err := cmd.Run(); err != nil {
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = err.Error()
		}
		return nil, solver.DepsolveError("pacman failed: %s", reason)
	}
	return stdout.Bytes(), nil
}

// Depsolve resolves a single transaction. Pacman has no notion of
// cumulative transaction marking, so requests with more than one
// transaction are rejected.
func (s *Solver) Depsolve(args solver.DepsolveArgs) (*solver.DepsolveResult, error) {
	if len(args.Transactions) != 1 {
		return nil, solver.InvalidRequestError("Pacman backend supports exactly one transaction, got %d", len(args.Transactions))
	}
	if args.SBOM != nil {
		return nil, solver.InvalidRequestError("SBOM generation is not supported by the pacman backend")
	}
	transaction := args.Transactions[0]

	if err := s.prepareRoot(); err != nil {
		return nil, err
	}

	// sync the databases so the private root is valid
	if _, err := s.runPacman("-Sy", "--root", s.cachePath, "--config", s.configPath); err != nil {
		return nil, err
	}

	printArgs := append([]string{
		"-S", "--print", "--print-format", printFormat,
		"--sysroot", s.cachePath,
	}, transaction.PackageSpecs...)
	out, err := s.runPacman(printArgs...)
	if err != nil {
		return nil, err
	}

	var packages []solver.Package
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return nil, solver.InternalError("unexpected pacman print output: %q", line)
		}
		pkg, err := s.packageInfo(fields[0], fields[1], fields[2])
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}

	if len(packages) == 0 {
		return nil, solver.DepsolveError("Empty transaction results")
	}
	solver.SortPackages(packages)

	return &solver.DepsolveResult{
		Transactions: [][]solver.Package{packages},
		Repositories: solver.SortRepositories(s.config.Repos),
	}, nil
}

// Dump is not supported: pacman offers no cheap way to enumerate every
// available package with the metadata the response needs.
func (s *Solver) Dump() (*solver.DumpResult, error) {
	return nil, solver.InvalidRequestError("The pacman backend does not support the 'dump' command")
}

// Search is not supported by the pacman backend.
func (s *Solver) Search(solver.SearchArgs) (*solver.SearchResult, error) {
	return nil, solver.InvalidRequestError("The pacman backend does not support the 'search' command")
}

// packageInfo fills in the metadata the print format cannot deliver by
// querying pacman for the extended package info and parsing its
// colon-delimited key/value output.
func (s *Solver) packageInfo(name, version, url string) (solver.Package, error) {
	out, err := s.runPacman("-Sii", "--sysroot", s.cachePath, name)
	if err != nil {
		return solver.Package{}, err
	}
	info := parsePackageInfo(string(out))

	pkg := solver.Package{
		Name:        name,
		Arch:        info["Architecture"],
		License:     info["Licenses"],
		Description: info["Description"],
		URL:         info["URL"],

		RemoteLocations: []string{url},
	}
	pkg.Epoch, pkg.Version, pkg.Release = splitVersion(version)
	pkg.BuildTime = parseBuildDate(info["Build Date"])

	if repo, ok := info["Repository"]; ok {
		pkg.RepoID = repo
	}

	return pkg, nil
}

// parsePackageInfo parses "pacman -Sii" output into a key/value map.
// Lines without a colon (continuations, blanks) are skipped.
func parsePackageInfo(text string) map[string]string {
	info := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		info[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return info
}

// splitVersion splits a pacman version string, [epoch:]version-release,
// into its parts.
func splitVersion(v string) (int, string, string) {
	epoch := 0
	if prefix, rest, found := strings.Cut(v, ":"); found {
		if parsed, err := strconv.Atoi(prefix); err == nil {
			epoch = parsed
			v = rest
		}
	}
	if i := strings.LastIndex(v, "-"); i >= 0 {
		return epoch, v[:i], v[i+1:]
	}
	return epoch, v, ""
}

var buildDateLayouts = []string{
	"Mon 2 Jan 2006 03:04:05 PM MST",
	"Mon 02 Jan 2006 03:04:05 PM MST",
	"Mon 2 Jan 2006 15:04:05 MST",
	"Mon Jan 2 15:04:05 2006",
}

// parseBuildDate parses the C-locale date pacman prints, returning 0
// when the format is not recognized.
func parseBuildDate(date string) int64 {
	if date == "" {
		return 0
	}
	for _, layout := range buildDateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Unix()
		}
	}
	logrus.Debugf("unparseable pacman build date: %q", date)
	return 0
}
