// Package sbom builds a standard-agnostic bill-of-materials package
// graph from a resolved package set. Serialization into a concrete SBOM
// standard lives in the subpackages.
package sbom

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/osbuild/osbuild-depsolve/internal/solver"
)

// ChecksumAlgorithm names a checksum algorithm in the form SBOM
// standards use.
type ChecksumAlgorithm string

const (
	ChecksumSHA1   ChecksumAlgorithm = "SHA1"
	ChecksumSHA224 ChecksumAlgorithm = "SHA224"
	ChecksumSHA256 ChecksumAlgorithm = "SHA256"
	ChecksumSHA384 ChecksumAlgorithm = "SHA384"
	ChecksumSHA512 ChecksumAlgorithm = "SHA512"
	ChecksumMD5    ChecksumAlgorithm = "MD5"
)

var checksumAlgorithms = map[string]ChecksumAlgorithm{
	"sha1":   ChecksumSHA1,
	"sha224": ChecksumSHA224,
	"sha256": ChecksumSHA256,
	"sha384": ChecksumSHA384,
	"sha512": ChecksumSHA512,
	"md5":    ChecksumMD5,
}

// Dependency is an RPM dependency or provided capability.
type Dependency struct {
	Name     string
	Relation string
	Version  string
}

// Package is an RPM package together with its resolved dependency
// edges. DependsOn and OptionalDependsOn are keyed by the dependency's
// stable UUID.
type Package struct {
	Name         string
	Version      string
	Release      string
	Architecture string
	Epoch        int

	LicenseDeclared string
	Vendor          string
	Checksums       map[ChecksumAlgorithm]string
	Homepage        string
	DownloadURL     string
	BuildDate       time.Time
	Summary         string
	Description     string
	RepositoryURL   string
	SourceRPM       string

	Provides   []Dependency
	Requires   []Dependency
	Recommends []Dependency
	Suggests   []Dependency

	DependsOn         map[string]*Package
	OptionalDependsOn map[string]*Package
}

// UUID returns a stable identifier for the package, derived from its
// repository-agnostic package URL so that the same package resolved
// from different mirrors gets the same identity.
func (p *Package) UUID() string {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(p.purl(false))).String()
}

// PURL returns the Package URL for the RPM package.
//
// The PURL type for RPMs is defined at:
// https://github.com/package-url/purl-spec/blob/master/PURL-TYPES.rst#rpm
func (p *Package) PURL() string {
	return p.purl(true)
}

func (p *Package) purl(withRepoURL bool) string {
	namespace := ""
	if p.Vendor != "" {
		namespace = quote(strings.ToLower(p.Vendor), "/") + "/"
	}

	purl := fmt.Sprintf("pkg:rpm/%s%s@%s-%s?arch=%s", namespace, p.Name, p.Version, p.Release, p.Architecture)

	if p.Epoch != 0 {
		purl += fmt.Sprintf("&epoch=%d", p.Epoch)
	}

	if withRepoURL && p.RepositoryURL != "" {
		purl += "&repository_url=" + quote(p.RepositoryURL, "/:=")
	}

	return purl
}

// SourceInfo describes where the package was built from.
func (p *Package) SourceInfo() string {
	if p.SourceRPM != "" {
		return "Source RPM: " + p.SourceRPM
	}
	return ""
}

// quote percent-encodes everything except unreserved characters and the
// bytes listed in safe.
func quote(s, safe string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case strings.IndexByte("_.-~", c) >= 0 || strings.IndexByte(safe, c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// FromPackages converts a resolved package set into a dependency graph.
//
// The set is processed in two passes: the first collects everything each
// package provides, by capability name and by file path, the second
// resolves every package's requires against that index. Two passes are
// needed because packages within one resolved set can satisfy each
// other's dependencies regardless of processing order.
func FromPackages(pkgs []solver.Package) []*Package {
	var order []string
	byName := make(map[string]*Package, len(pkgs))
	byProvides := make(map[string][]*Package)

	for i := range pkgs {
		src := &pkgs[i]
		pkg := &Package{
			Name:              src.Name,
			Version:           src.Version,
			Release:           src.Release,
			Architecture:      src.Arch,
			Epoch:             src.Epoch,
			LicenseDeclared:   src.License,
			Vendor:            src.Vendor,
			Homepage:          src.URL,
			Summary:           src.Summary,
			Description:       src.Description,
			SourceRPM:         src.SourceRPM,
			Provides:          dependenciesFromModel(src.Provides),
			Requires:          dependenciesFromModel(src.Requires),
			Recommends:        dependenciesFromModel(src.Recommends),
			Suggests:          dependenciesFromModel(src.Suggests),
			DependsOn:         make(map[string]*Package),
			OptionalDependsOn: make(map[string]*Package),
		}

		if src.BuildTime != 0 {
			pkg.BuildDate = time.Unix(src.BuildTime, 0).UTC()
		}

		if src.Checksum != nil {
			if algorithm, ok := checksumAlgorithms[strings.ToLower(src.Checksum.Algorithm)]; ok {
				pkg.Checksums = map[ChecksumAlgorithm]string{algorithm: src.Checksum.Value}
			}
		}

		if len(src.RemoteLocations) > 0 {
			pkg.DownloadURL = src.RemoteLocations[0]
			if src.Location != "" {
				pkg.RepositoryURL = strings.TrimSuffix(pkg.DownloadURL, "/"+src.Location)
			}
		}

		for _, provide := range pkg.Provides {
			byProvides[provide.Name] = append(byProvides[provide.Name], pkg)
		}
		// packages can depend directly on files provided by others
		for _, file := range src.Files {
			byProvides[file] = append(byProvides[file], pkg)
		}

		if _, seen := byName[pkg.Name]; !seen {
			order = append(order, pkg.Name)
		}
		byName[pkg.Name] = pkg
	}

	for _, name := range order {
		pkg := byName[name]
		for _, require := range pkg.Requires {
			// a conditional dependency only applies when the condition
			// package is part of the set
			if strings.TrimSpace(require.Relation) == "if" && byName[require.Version] == nil {
				continue
			}
			for _, provider := range byProvides[require.Name] {
				pkg.DependsOn[provider.UUID()] = provider
			}
		}

		softDeps := make([]Dependency, 0, len(pkg.Recommends)+len(pkg.Suggests))
		softDeps = append(softDeps, pkg.Recommends...)
		softDeps = append(softDeps, pkg.Suggests...)
		for _, softDep := range softDeps {
			for _, provider := range byProvides[softDep.Name] {
				pkg.OptionalDependsOn[provider.UUID()] = provider
			}
		}
	}

	result := make([]*Package, 0, len(order))
	for _, name := range order {
		result = append(result, byName[name])
	}
	return result
}

func dependenciesFromModel(deps []solver.Dependency) []Dependency {
	if len(deps) == 0 {
		return nil
	}
	converted := make([]Dependency, len(deps))
	for i, dep := range deps {
		converted[i] = Dependency{Name: dep.Name, Relation: dep.Relation, Version: dep.Version}
	}
	return converted
}
