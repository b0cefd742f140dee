// Package solver contains the domain and request model for the depsolve
// service, the credential resolution that runs before any backend is
// invoked, and the Solver interface implemented by the backends.
//
// The types here are plain value objects. They are constructed once per
// request, passed to a backend, and discarded after the response has
// been serialized.
package solver

import (
	"fmt"
	"sort"
	"time"
)

// Checksum is a single package checksum and its algorithm ("md5",
// "sha1", "sha256", "sha384", "sha512").
type Checksum struct {
	Algorithm string
	Value     string
}

func (c Checksum) String() string {
	return fmt.Sprintf("%s:%s", c.Algorithm, c.Value)
}

// Dependency is an RPM dependency or provided capability. Relation is a
// comparator string such as ">=", empty for unversioned dependencies.
type Dependency struct {
	Name     string
	Relation string
	Version  string
}

func (d Dependency) String() string {
	s := d.Name
	if d.Relation != "" {
		s += " " + d.Relation
	}
	if d.Version != "" {
		s += " " + d.Version
	}
	return s
}

// Package is an RPM package as reported by a resolver backend. The
// field set is the common subset of libdnf and libdnf5 package
// attributes that matters for image building.
type Package struct {
	Name    string
	Epoch   int
	Version string
	Release string
	Arch    string

	Group        string
	DownloadSize int64
	InstallSize  int64
	License      string
	SourceRPM    string
	BuildTime    int64
	Packager     string
	Vendor       string
	URL          string
	Summary      string
	Description  string

	Provides        []Dependency
	Requires        []Dependency
	RequiresPre     []Dependency
	Conflicts       []Dependency
	Obsoletes       []Dependency
	RegularRequires []Dependency

	Recommends  []Dependency
	Suggests    []Dependency
	Enhances    []Dependency
	Supplements []Dependency

	Files []string

	// Location is the package path relative to the repository root;
	// RemoteLocations are absolute URLs, the first one being the mirror
	// whose metadata resolved the package.
	Location        string
	RemoteLocations []string

	Checksum       *Checksum
	HeaderChecksum *Checksum

	RepoID string
	Reason string
}

// FullNEVRA returns the canonical identity string of the package. The
// epoch is always included, even when zero.
func (p Package) FullNEVRA() string {
	return fmt.Sprintf("%s-%d:%s-%s.%s", p.Name, p.Epoch, p.Version, p.Release, p.Arch)
}

func (p Package) String() string {
	return p.FullNEVRA()
}

// BuildTimeRFC3339 formats the build timestamp, or returns an empty
// string when the backend did not report one.
func (p Package) BuildTimeRFC3339() string {
	if p.BuildTime == 0 {
		return ""
	}
	return time.Unix(p.BuildTime, 0).UTC().Format("2006-01-02T15:04:05Z")
}

// SortPackages orders packages lexicographically by their full NEVRA.
// Both DNF backends sort their per-transaction results this way so that
// output ordering does not depend on the engine's internal order.
func SortPackages(pkgs []Package) {
	sort.Slice(pkgs, func(i, j int) bool {
		return pkgs[i].FullNEVRA() < pkgs[j].FullNEVRA()
	})
}

// Repository describes a DNF/YUM repository, both as configured in a
// request and as reported back by a backend.
type Repository struct {
	// ID is the required, immutable repository identity.
	ID   string
	Name string

	BaseURLs   []string
	Metalink   string
	Mirrorlist string

	GPGCheck     *bool
	RepoGPGCheck *bool

	// GPGKeys holds the configured key material: either URLs or inline
	// PEM armored keys.
	GPGKeys []string

	SSLVerify     *bool
	SSLCACert     string
	SSLClientKey  string
	SSLClientCert string

	MetadataExpire string
	ModuleHotfixes *bool

	Enabled           *bool
	Priority          *int
	Username          string
	Password          string
	SkipIfUnavailable *bool

	// RHSM marks a repository whose SSL secrets come from the host
	// subscription data. Responses never echo those secrets back.
	RHSM bool

	// RHUI marks a repository served by cloud update infrastructure.
	// Credential resolution treats it like RHSM after the cloud
	// identity has been attached.
	RHUI bool

	// Headers are extra HTTP headers ("Name: value") sent with every
	// request to the repository. Credential resolution fills them with
	// the cloud identity for RHUI repositories.
	Headers []string

	// ResolvedKeys is filled by the backends with the key file contents
	// read from GPGKeys. Only the V1 response format exposes it.
	ResolvedKeys []string
}

// Validate enforces the one structural repository invariant: at least
// one of baseurl, metalink, or mirrorlist must be present.
func (r Repository) Validate() error {
	if r.ID == "" {
		return InvalidRequestError("Repository 'id' cannot be empty")
	}
	if len(r.BaseURLs) == 0 && r.Metalink == "" && r.Mirrorlist == "" {
		return InvalidRequestError("At least one of 'baseurl', 'metalink', or 'mirrorlist' must be specified")
	}
	return nil
}

// URLs collects every URL the repository is configured with. Credential
// resolution matches host secrets against these.
func (r Repository) URLs() []string {
	urls := make([]string, 0, len(r.BaseURLs)+2)
	urls = append(urls, r.BaseURLs...)
	if r.Metalink != "" {
		urls = append(urls, r.Metalink)
	}
	if r.Mirrorlist != "" {
		urls = append(urls, r.Mirrorlist)
	}
	return urls
}

// RepositoryFromRequest applies the defaults a parsed wire request
// expects: ssl verification on, a short metadata expiry, and the repo
// id as the name when none is given. Repositories reported back by a
// backend are built directly instead, preserving the engine's values.
func RepositoryFromRequest(repo Repository) (Repository, error) {
	if err := repo.Validate(); err != nil {
		return Repository{}, err
	}
	if repo.Name == "" {
		repo.Name = repo.ID
	}
	if repo.SSLVerify == nil {
		repo.SSLVerify = Bool(true)
	}
	if repo.MetadataExpire == "" {
		// dnf's default is 48 hours; keep the window short so repeated
		// calls in one build never depsolve against stale metadata.
		repo.MetadataExpire = "20s"
	}
	return repo, nil
}

// SortRepositories orders repositories by id, deduplicating on the way.
// Backends report the repositories their result packages came from and
// the response must not depend on backend iteration order.
func SortRepositories(repos []Repository) []Repository {
	byID := make(map[string]Repository, len(repos))
	for _, repo := range repos {
		byID[repo.ID] = repo
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sorted := make([]Repository, len(ids))
	for i, id := range ids {
		sorted[i] = byID[id]
	}
	return sorted
}

// ModuleFile is one file a caller must write to enable a DNF module in
// the built artifact.
type ModuleFile struct {
	Data string `json:"data"`
	Path string `json:"path"`
}

// ModuleConfig carries the module metadata for one enabled module: the
// /etc/dnf/modules.d entry and the failsafe copy of the modulemd.
type ModuleConfig struct {
	ModuleFile   ModuleFile `json:"module-file"`
	FailsafeFile ModuleFile `json:"failsafe-file"`
}

// DepsolveResult is the output of Solver.Depsolve. Each transaction's
// package list is a superset of the previous one, sorted by full NEVRA.
type DepsolveResult struct {
	Transactions [][]Package
	Repositories []Repository
	Modules      map[string]ModuleConfig
	SBOM         interface{}
}

// DumpResult is the output of Solver.Dump.
type DumpResult struct {
	Packages     []Package
	Repositories []Repository
}

// SearchResult is the output of Solver.Search.
type SearchResult struct {
	Packages     []Package
	Repositories []Repository
}

// Bool returns a pointer to b, for the tri-state repository options.
func Bool(b bool) *bool {
	return &b
}

// Int returns a pointer to i.
func Int(i int) *int {
	return &i
}
