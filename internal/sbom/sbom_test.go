package sbom

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/osbuild-depsolve/internal/solver"
)

func TestPURL(t *testing.T) {
	pkg := &Package{
		Name:         "bash",
		Version:      "5.1.8",
		Release:      "1.el9",
		Architecture: "x86_64",
	}
	assert.Equal(t, "pkg:rpm/bash@5.1.8-1.el9?arch=x86_64", pkg.PURL())

	pkg.Vendor = "Red Hat, Inc."
	assert.Equal(t, "pkg:rpm/red%20hat%2C%20inc./bash@5.1.8-1.el9?arch=x86_64", pkg.PURL())

	pkg.Epoch = 2
	assert.Equal(t, "pkg:rpm/red%20hat%2C%20inc./bash@5.1.8-1.el9?arch=x86_64&epoch=2", pkg.PURL())

	pkg.RepositoryURL = "https://example.com/baseos"
	assert.Equal(t,
		"pkg:rpm/red%20hat%2C%20inc./bash@5.1.8-1.el9?arch=x86_64&epoch=2&repository_url=https://example.com/baseos",
		pkg.PURL())
}

func TestUUIDStability(t *testing.T) {
	pkg := &Package{
		Name:         "bash",
		Version:      "5.1.8",
		Release:      "1.el9",
		Architecture: "x86_64",
	}
	id := pkg.UUID()
	require.NotEmpty(t, id)

	// The UUID ignores the repository: the same package from a mirror
	// keeps its identity.
	mirrored := *pkg
	mirrored.RepositoryURL = "https://mirror.example.com/baseos"
	assert.Equal(t, id, mirrored.UUID())

	// Different content is a different identity.
	other := *pkg
	other.Version = "5.1.9"
	assert.NotEqual(t, id, other.UUID())

	// Derived from the purl, so reproducible across runs.
	assert.Equal(t, pkg.UUID(), pkg.UUID())
}

func TestSourceInfo(t *testing.T) {
	pkg := &Package{Name: "bash"}
	assert.Empty(t, pkg.SourceInfo())
	pkg.SourceRPM = "bash-5.1.8-1.el9.src.rpm"
	assert.Equal(t, "Source RPM: bash-5.1.8-1.el9.src.rpm", pkg.SourceInfo())
}

func modelPkg(name string, mutate func(*solver.Package)) solver.Package {
	pkg := solver.Package{
		Name:    name,
		Version: "1.0",
		Release: "1.el9",
		Arch:    "x86_64",
		Provides: []solver.Dependency{
			{Name: name},
		},
	}
	if mutate != nil {
		mutate(&pkg)
	}
	return pkg
}

func TestFromPackages(t *testing.T) {
	pkgs := []solver.Package{
		modelPkg("bash", func(p *solver.Package) {
			p.License = "GPL-3.0-or-later"
			p.Vendor = "Fedora Project"
			p.BuildTime = 1633585200
			p.Checksum = &solver.Checksum{Algorithm: "sha256", Value: "abc123"}
			p.SourceRPM = "bash-1.0-1.el9.src.rpm"
			p.Location = "Packages/b/bash-1.0-1.el9.x86_64.rpm"
			p.RemoteLocations = []string{"https://example.com/baseos/Packages/b/bash-1.0-1.el9.x86_64.rpm"}
			p.Requires = []solver.Dependency{
				{Name: "libc.so.6()(64bit)"},
				{Name: "/usr/bin/sh"},
			}
		}),
		modelPkg("glibc", func(p *solver.Package) {
			p.Provides = append(p.Provides, solver.Dependency{Name: "libc.so.6()(64bit)"})
			p.Files = []string{"/usr/bin/sh", "/usr/lib64/libc.so.6"}
		}),
		modelPkg("bash-completion", func(p *solver.Package) {
			p.Recommends = []solver.Dependency{{Name: "bash"}}
		}),
	}

	graph := FromPackages(pkgs)
	require.Len(t, graph, 3)

	// Input order is preserved.
	bash, glibc, completion := graph[0], graph[1], graph[2]
	assert.Equal(t, "bash", bash.Name)
	assert.Equal(t, "glibc", glibc.Name)
	assert.Equal(t, "bash-completion", completion.Name)

	assert.Equal(t, "https://example.com/baseos/Packages/b/bash-1.0-1.el9.x86_64.rpm", bash.DownloadURL)
	assert.Equal(t, "https://example.com/baseos", bash.RepositoryURL)
	assert.Equal(t, time.Date(2021, 10, 7, 5, 40, 0, 0, time.UTC), bash.BuildDate)
	assert.Equal(t, map[ChecksumAlgorithm]string{ChecksumSHA256: "abc123"}, bash.Checksums)

	// Both requires resolve to glibc: one by capability, one by file.
	require.Len(t, bash.DependsOn, 1)
	assert.Contains(t, bash.DependsOn, glibc.UUID())
	assert.Empty(t, bash.OptionalDependsOn)

	// Recommends become optional dependency edges.
	require.Len(t, completion.OptionalDependsOn, 1)
	assert.Contains(t, completion.OptionalDependsOn, bash.UUID())
}

func TestFromPackagesConditionalRequires(t *testing.T) {
	pkgs := []solver.Package{
		modelPkg("app", func(p *solver.Package) {
			p.Requires = []solver.Dependency{
				{Name: "plugin", Relation: " if ", Version: "absent-feature"},
				{Name: "plugin", Relation: "if", Version: "present-feature"},
			}
		}),
		modelPkg("plugin", nil),
		modelPkg("present-feature", nil),
	}

	graph := FromPackages(pkgs)
	app := graph[0]
	plugin := graph[1]

	// The conditional on the absent package is skipped, the one on the
	// present package resolves.
	require.Len(t, app.DependsOn, 1)
	assert.Contains(t, app.DependsOn, plugin.UUID())
}

func TestFromPackagesUnknownChecksum(t *testing.T) {
	pkgs := []solver.Package{
		modelPkg("pkg", func(p *solver.Package) {
			p.Checksum = &solver.Checksum{Algorithm: "crc32", Value: "ff"}
		}),
	}
	graph := FromPackages(pkgs)
	assert.Empty(t, graph[0].Checksums)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "red%20hat%2C%20inc.", quote("red hat, inc.", "/"))
	assert.Equal(t, "https://example.com/a=b", quote("https://example.com/a=b", "/:="))
	assert.Equal(t, "a_b.c-d~e", quote("a_b.c-d~e", ""))
}
