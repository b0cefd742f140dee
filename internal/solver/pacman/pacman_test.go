package pacman

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/osbuild-depsolve/internal/solver"
)

// fakePacman writes a stand-in pacman script that answers the three
// invocations the solver makes: database sync, transaction print, and
// extended package info.
func fakePacman(t *testing.T, printLines string) string {
	t.Helper()
	script := fmt.Sprintf(`#!/bin/sh
for arg; do last="$arg"; done
case "$1" in
-Sy)
	exit 0
	;;
-S)
	printf '%%b' %q
	;;
-Sii)
	case "$last" in
	vim)
		printf 'Repository      : extra\n'
		printf 'Name            : vim\n'
		printf 'Architecture    : x86_64\n'
		printf 'URL             : https://www.vim.org\n'
		printf 'Licenses        : Vim\n'
		printf 'Description     : Vi Improved, a highly configurable text editor\n'
		printf 'Build Date      : Thu 07 Oct 2021 05:40:00 AM UTC\n'
		;;
	gpm)
		printf 'Repository      : core\n'
		printf 'Name            : gpm\n'
		printf 'Architecture    : x86_64\n'
		printf 'Licenses        : GPL\n'
		printf 'Description     : A mouse server for the console\n'
		printf 'Build Date      : some day\n'
		;;
	esac
	;;
esac
`, printLines)
	path := filepath.Join(t.TempDir(), "pacman")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))
	return path
}

func failingPacman(t *testing.T, stderr string) string {
	t.Helper()
	script := fmt.Sprintf(`#!/bin/sh
printf '%%s\n' %q >&2
exit 1
`, stderr)
	path := filepath.Join(t.TempDir(), "pacman")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))
	return path
}

func testConfig(t *testing.T) solver.Config {
	return solver.Config{
		Arch:       "x86_64",
		ReleaseVer: "rolling",
		CacheDir:   t.TempDir(),
		Repos: []solver.Repository{
			{ID: "core", BaseURLs: []string{"https://mirror.example.com/core"}},
			{ID: "extra", BaseURLs: []string{"https://mirror.example.com/extra"}},
		},
	}
}

func singleTransaction(specs ...string) solver.DepsolveArgs {
	return solver.DepsolveArgs{
		Transactions: []solver.Transaction{{PackageSpecs: specs}},
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	config := testConfig(t)
	config.Repos = append(config.Repos, solver.Repository{ID: "mirrored", Metalink: "https://example.com/metalink"})
	_, err := New(config)
	assert.EqualError(t, err, "Repository 'mirrored' must have a baseurl for the pacman backend")
}

func TestName(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "pacman", s.Name())
}

func TestDepsolve(t *testing.T) {
	config := testConfig(t)
	s, err := New(config)
	require.NoError(t, err)
	s.SetPacmanCommand(fakePacman(t,
		"vim\t1:9.1.0-1\thttps://mirror.example.com/extra/vim-9.1.0-1-x86_64.pkg.tar.zst\n"+
			"gpm\t1.20.7-8\thttps://mirror.example.com/core/gpm-1.20.7-8-x86_64.pkg.tar.zst\n"))

	result, err := s.Depsolve(singleTransaction("vim"))
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	packages := result.Transactions[0]
	require.Len(t, packages, 2)

	// Sorted by name.
	gpm, vim := packages[0], packages[1]

	assert.Equal(t, "gpm", gpm.Name)
	assert.Equal(t, 0, gpm.Epoch)
	assert.Equal(t, "1.20.7", gpm.Version)
	assert.Equal(t, "8", gpm.Release)
	assert.Equal(t, "core", gpm.RepoID)
	assert.Equal(t, "GPL", gpm.License)
	// Unparseable build dates are dropped rather than failing the
	// transaction.
	assert.Zero(t, gpm.BuildTime)

	assert.Equal(t, "vim", vim.Name)
	assert.Equal(t, 1, vim.Epoch)
	assert.Equal(t, "9.1.0", vim.Version)
	assert.Equal(t, "1", vim.Release)
	assert.Equal(t, "x86_64", vim.Arch)
	assert.Equal(t, "extra", vim.RepoID)
	assert.Equal(t, "https://www.vim.org", vim.URL)
	assert.Equal(t, []string{"https://mirror.example.com/extra/vim-9.1.0-1-x86_64.pkg.tar.zst"}, vim.RemoteLocations)
	assert.Equal(t, int64(1633585200), vim.BuildTime)

	require.Len(t, result.Repositories, 2)
	assert.Equal(t, "core", result.Repositories[0].ID)
	assert.Equal(t, "extra", result.Repositories[1].ID)

	// The private root got a configuration listing the request repos.
	conf, err := os.ReadFile(filepath.Join(config.CacheDir, "etc", "pacman.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(conf), "Architecture = x86_64")
	assert.Contains(t, string(conf), "[core]")
	assert.Contains(t, string(conf), "Server = https://mirror.example.com/extra")
}

func TestDepsolveExactlyOneTransaction(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)

	_, err = s.Depsolve(solver.DepsolveArgs{})
	assert.EqualError(t, err, "Pacman backend supports exactly one transaction, got 0")

	_, err = s.Depsolve(solver.DepsolveArgs{
		Transactions: []solver.Transaction{
			{PackageSpecs: []string{"base"}},
			{PackageSpecs: []string{"vim"}},
		},
	})
	assert.EqualError(t, err, "Pacman backend supports exactly one transaction, got 2")
}

func TestDepsolveRejectsSBOM(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)

	args := singleTransaction("vim")
	args.SBOM = &solver.SBOMRequest{Type: solver.SBOMTypeSPDX}
	_, err = s.Depsolve(args)
	assert.EqualError(t, err, "SBOM generation is not supported by the pacman backend")
}

func TestDepsolveEmptyResults(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)
	s.SetPacmanCommand(fakePacman(t, ""))

	_, err = s.Depsolve(singleTransaction("vim"))
	require.Error(t, err)
	assert.Equal(t, solver.ErrorKindDepsolve, solver.KindOf(err))
	assert.EqualError(t, err, "Empty transaction results")
}

func TestDepsolveBadPrintOutput(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)
	s.SetPacmanCommand(fakePacman(t, "no tabs in this line\n"))

	_, err = s.Depsolve(singleTransaction("vim"))
	require.Error(t, err)
	assert.Equal(t, solver.ErrorKindInternal, solver.KindOf(err))
	assert.EqualError(t, err, `unexpected pacman print output: "no tabs in this line"`)
}

func TestDepsolvePacmanFailure(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)
	s.SetPacmanCommand(failingPacman(t, "error: target not found: no-such-package"))

	_, err = s.Depsolve(singleTransaction("no-such-package"))
	require.Error(t, err)
	assert.Equal(t, solver.ErrorKindDepsolve, solver.KindOf(err))
	assert.EqualError(t, err, "pacman failed: error: target not found: no-such-package")
}

func TestDumpUnsupported(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)
	_, err = s.Dump()
	assert.EqualError(t, err, "The pacman backend does not support the 'dump' command")
}

func TestSearchUnsupported(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)
	_, err = s.Search(solver.SearchArgs{Packages: []string{"vim"}})
	assert.EqualError(t, err, "The pacman backend does not support the 'search' command")
}

func TestSplitVersion(t *testing.T) {
	cases := []struct {
		input   string
		epoch   int
		version string
		release string
	}{
		{"9.1.0-1", 0, "9.1.0", "1"},
		{"1:9.1.0-1", 1, "9.1.0", "1"},
		{"2:1.2.3-4.5", 2, "1.2.3", "4.5"},
		{"20240301-2", 0, "20240301", "2"},
		{"1.0", 0, "1.0", ""},
	}
	for _, c := range cases {
		epoch, version, release := splitVersion(c.input)
		assert.Equal(t, c.epoch, epoch, "input: %s", c.input)
		assert.Equal(t, c.version, version, "input: %s", c.input)
		assert.Equal(t, c.release, release, "input: %s", c.input)
	}
}

func TestParsePackageInfo(t *testing.T) {
	info := parsePackageInfo(`Repository      : extra
Name            : vim
URL             : https://www.vim.org
Optional Deps   : None

`)
	assert.Equal(t, "extra", info["Repository"])
	assert.Equal(t, "vim", info["Name"])
	// The first colon separates key and value, the URL stays intact.
	assert.Equal(t, "https://www.vim.org", info["URL"])
	assert.NotContains(t, info, "")
}

func TestParseBuildDate(t *testing.T) {
	assert.Equal(t, int64(1633585200), parseBuildDate("Thu 07 Oct 2021 05:40:00 AM UTC"))
	assert.Equal(t, int64(1633585200), parseBuildDate("Thu 7 Oct 2021 05:40:00 AM UTC"))
	assert.Zero(t, parseBuildDate(""))
	assert.Zero(t, parseBuildDate("some day"))
}
