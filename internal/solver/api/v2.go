package api

import (
	"encoding/json"

	"github.com/osbuild/osbuild-depsolve/internal/solver"
)

// v2Codec implements the current wire format. For schema stability,
// every model field is always present in serialized packages and
// repositories, even when unset. The only exception is the sbom field,
// which appears only when an SBOM was requested.
type v2Codec struct{}

type v2RequestRepository struct {
	ID             *string         `json:"id"`
	Name           string          `json:"name"`
	BaseURL        json.RawMessage `json:"baseurl"`
	Metalink       string          `json:"metalink"`
	Mirrorlist     string          `json:"mirrorlist"`
	GPGCheck       *bool           `json:"gpgcheck"`
	RepoGPGCheck   *bool           `json:"repo_gpgcheck"`
	GPGKey         json.RawMessage `json:"gpgkey"`
	SSLVerify      *bool           `json:"sslverify"`
	SSLCACert      string          `json:"sslcacert"`
	SSLClientKey   string          `json:"sslclientkey"`
	SSLClientCert  string          `json:"sslclientcert"`
	MetadataExpire string          `json:"metadata_expire"`
	ModuleHotfixes *bool           `json:"module_hotfixes"`
	RHSM           bool            `json:"rhsm"`
	RHUI           bool            `json:"rhui"`
}

// parseRepositoryV2 is strict where V1 is lenient: baseurl and gpgkey
// must be lists, and the legacy gpgkeys field is not recognized.
func parseRepositoryV2(raw json.RawMessage) (solver.Repository, error) {
	if !isJSONDict(raw) {
		return solver.Repository{}, solver.InvalidRequestError("Invalid repository config: Repository config must be a dict")
	}
	var repo v2RequestRepository
	if err := json.Unmarshal(raw, &repo); err != nil {
		return solver.Repository{}, solver.InvalidRequestError("Invalid repository config: %v", err)
	}
	if repo.ID == nil {
		return solver.Repository{}, solver.InvalidRequestError("Missing required field 'id' in 'repos' item configuration")
	}

	var baseurl []string
	if !isJSONNull(repo.BaseURL) {
		if !isJSONList(repo.BaseURL) {
			return solver.Repository{}, solver.InvalidRequestError(
				"Invalid repository config: 'baseurl' must be a list of URLs, got %s", jsonTypeName(repo.BaseURL))
		}
		if err := json.Unmarshal(repo.BaseURL, &baseurl); err != nil {
			return solver.Repository{}, solver.InvalidRequestError("Invalid repository config: %v", err)
		}
	}

	var gpgkeys []string
	if !isJSONNull(repo.GPGKey) {
		if !isJSONList(repo.GPGKey) {
			return solver.Repository{}, solver.InvalidRequestError(
				"Invalid repository config: 'gpgkey' must be a list, got %s", jsonTypeName(repo.GPGKey))
		}
		if err := json.Unmarshal(repo.GPGKey, &gpgkeys); err != nil {
			return solver.Repository{}, solver.InvalidRequestError("Invalid repository config: %v", err)
		}
	}

	return solver.RepositoryFromRequest(solver.Repository{
		ID:             *repo.ID,
		Name:           repo.Name,
		BaseURLs:       baseurl,
		Metalink:       repo.Metalink,
		Mirrorlist:     repo.Mirrorlist,
		GPGCheck:       repo.GPGCheck,
		RepoGPGCheck:   repo.RepoGPGCheck,
		GPGKeys:        gpgkeys,
		SSLVerify:      repo.SSLVerify,
		SSLCACert:      repo.SSLCACert,
		SSLClientKey:   repo.SSLClientKey,
		SSLClientCert:  repo.SSLClientCert,
		MetadataExpire: repo.MetadataExpire,
		ModuleHotfixes: repo.ModuleHotfixes,
		RHSM:           repo.RHSM,
		RHUI:           repo.RHUI,
	})
}

func (v2Codec) ParseRequest(data []byte) (solver.Request, error) {
	return parseRequest(data, parseOptions{
		parseRepository:       parseRepositoryV2,
		wrapTransactionErrors: true,
	})
}

type v2Checksum struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type v2Dependency struct {
	Name     string `json:"name"`
	Relation string `json:"relation,omitempty"`
	Version  string `json:"version,omitempty"`
}

type v2Package struct {
	Name            string      `json:"name"`
	Epoch           int         `json:"epoch"`
	Version         string      `json:"version"`
	Release         string      `json:"release"`
	Arch            string      `json:"arch"`
	RepoID          string      `json:"repo_id"`
	Location        string      `json:"location"`
	RemoteLocations []string    `json:"remote_locations"`
	Checksum        *v2Checksum `json:"checksum"`

	HeaderChecksum *v2Checksum `json:"header_checksum"`
	License        string      `json:"license"`
	Summary        string      `json:"summary"`
	Description    string      `json:"description"`
	URL            string      `json:"url"`
	Vendor         string      `json:"vendor"`
	Packager       string      `json:"packager"`
	BuildTime      *string     `json:"build_time"`
	DownloadSize   int64       `json:"download_size"`
	InstallSize    int64       `json:"install_size"`
	Group          string      `json:"group"`
	SourceRPM      string      `json:"source_rpm"`
	Reason         string      `json:"reason"`

	Provides        []v2Dependency `json:"provides"`
	Requires        []v2Dependency `json:"requires"`
	RequiresPre     []v2Dependency `json:"requires_pre"`
	Conflicts       []v2Dependency `json:"conflicts"`
	Obsoletes       []v2Dependency `json:"obsoletes"`
	RegularRequires []v2Dependency `json:"regular_requires"`
	Recommends      []v2Dependency `json:"recommends"`
	Suggests        []v2Dependency `json:"suggests"`
	Enhances        []v2Dependency `json:"enhances"`
	Supplements     []v2Dependency `json:"supplements"`

	Files []string `json:"files"`
}

// v2ResponseRepository hides the SSL secret fields when the repository
// got them from the host subscriptions: they are serialized as null
// regardless of their actual values.
type v2ResponseRepository struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	BaseURL        []string `json:"baseurl"`
	Metalink       string   `json:"metalink"`
	Mirrorlist     string   `json:"mirrorlist"`
	GPGCheck       *bool    `json:"gpgcheck"`
	RepoGPGCheck   *bool    `json:"repo_gpgcheck"`
	GPGKey         []string `json:"gpgkey"`
	SSLVerify      *bool    `json:"sslverify"`
	MetadataExpire string   `json:"metadata_expire"`
	ModuleHotfixes *bool    `json:"module_hotfixes"`
	RHSM           bool     `json:"rhsm"`
	RHUI           bool     `json:"rhui"`
	SSLCACert      *string  `json:"sslcacert"`
	SSLClientKey   *string  `json:"sslclientkey"`
	SSLClientCert  *string  `json:"sslclientcert"`
}

type v2DepsolveResponse struct {
	Solver       string                          `json:"solver"`
	Transactions [][]v2Package                   `json:"transactions"`
	Repos        map[string]v2ResponseRepository `json:"repos"`
	Modules      map[string]solver.ModuleConfig  `json:"modules"`
	SBOM         interface{}                     `json:"sbom,omitempty"`
}

type v2PackagesResponse struct {
	Solver   string                          `json:"solver"`
	Packages []v2Package                     `json:"packages"`
	Repos    map[string]v2ResponseRepository `json:"repos"`
}

func v2ChecksumFromModel(checksum *solver.Checksum) *v2Checksum {
	if checksum == nil {
		return nil
	}
	return &v2Checksum{Algorithm: checksum.Algorithm, Value: checksum.Value}
}

func v2Dependencies(deps []solver.Dependency) []v2Dependency {
	converted := make([]v2Dependency, 0, len(deps))
	for _, dep := range deps {
		converted = append(converted, v2Dependency{
			Name:     dep.Name,
			Relation: dep.Relation,
			Version:  dep.Version,
		})
	}
	return converted
}

func v2PackageFromModel(pkg solver.Package) v2Package {
	var buildTime *string
	if pkg.BuildTime != 0 {
		t := pkg.BuildTimeRFC3339()
		buildTime = &t
	}

	remoteLocations := pkg.RemoteLocations
	if remoteLocations == nil {
		remoteLocations = []string{}
	}
	files := pkg.Files
	if files == nil {
		files = []string{}
	}

	return v2Package{
		Name:            pkg.Name,
		Epoch:           pkg.Epoch,
		Version:         pkg.Version,
		Release:         pkg.Release,
		Arch:            pkg.Arch,
		RepoID:          pkg.RepoID,
		Location:        pkg.Location,
		RemoteLocations: remoteLocations,
		Checksum:        v2ChecksumFromModel(pkg.Checksum),
		HeaderChecksum:  v2ChecksumFromModel(pkg.HeaderChecksum),
		License:         pkg.License,
		Summary:         pkg.Summary,
		Description:     pkg.Description,
		URL:             pkg.URL,
		Vendor:          pkg.Vendor,
		Packager:        pkg.Packager,
		BuildTime:       buildTime,
		DownloadSize:    pkg.DownloadSize,
		InstallSize:     pkg.InstallSize,
		Group:           pkg.Group,
		SourceRPM:       pkg.SourceRPM,
		Reason:          pkg.Reason,
		Provides:        v2Dependencies(pkg.Provides),
		Requires:        v2Dependencies(pkg.Requires),
		RequiresPre:     v2Dependencies(pkg.RequiresPre),
		Conflicts:       v2Dependencies(pkg.Conflicts),
		Obsoletes:       v2Dependencies(pkg.Obsoletes),
		RegularRequires: v2Dependencies(pkg.RegularRequires),
		Recommends:      v2Dependencies(pkg.Recommends),
		Suggests:        v2Dependencies(pkg.Suggests),
		Enhances:        v2Dependencies(pkg.Enhances),
		Supplements:     v2Dependencies(pkg.Supplements),
		Files:           files,
	}
}

func v2RepositoryFromModel(repo solver.Repository) v2ResponseRepository {
	converted := v2ResponseRepository{
		ID:             repo.ID,
		Name:           repo.Name,
		BaseURL:        repo.BaseURLs,
		Metalink:       repo.Metalink,
		Mirrorlist:     repo.Mirrorlist,
		GPGCheck:       repo.GPGCheck,
		RepoGPGCheck:   repo.RepoGPGCheck,
		GPGKey:         repo.GPGKeys,
		SSLVerify:      repo.SSLVerify,
		MetadataExpire: repo.MetadataExpire,
		ModuleHotfixes: repo.ModuleHotfixes,
		RHSM:           repo.RHSM,
		RHUI:           repo.RHUI,
	}
	if !repo.RHSM {
		converted.SSLCACert = &repo.SSLCACert
		converted.SSLClientKey = &repo.SSLClientKey
		converted.SSLClientCert = &repo.SSLClientCert
	}
	return converted
}

func v2Repositories(repos []solver.Repository) map[string]v2ResponseRepository {
	converted := make(map[string]v2ResponseRepository, len(repos))
	for _, repo := range repos {
		converted[repo.ID] = v2RepositoryFromModel(repo)
	}
	return converted
}

// transactionsToDisjointSets converts cumulative transaction results
// into disjoint sets: each output transaction contains only the
// packages that are new relative to all earlier transactions, sorted by
// full NEVRA. Consumers turn each set into one "install these packages"
// step without re-installing what earlier steps already covered.
func transactionsToDisjointSets(transactions [][]solver.Package) [][]solver.Package {
	disjointSets := make([][]solver.Package, 0, len(transactions))
	seen := make(map[string]bool)
	for _, transaction := range transactions {
		var disjoint []solver.Package
		for _, pkg := range transaction {
			nevra := pkg.FullNEVRA()
			if seen[nevra] {
				continue
			}
			seen[nevra] = true
			disjoint = append(disjoint, pkg)
		}
		solver.SortPackages(disjoint)
		disjointSets = append(disjointSets, disjoint)
	}
	return disjointSets
}

func (v2Codec) SerializeDepsolve(solverName string, result *solver.DepsolveResult) (interface{}, error) {
	transactions := transactionsToDisjointSets(result.Transactions)
	converted := make([][]v2Package, 0, len(transactions))
	for _, transaction := range transactions {
		packages := make([]v2Package, 0, len(transaction))
		for _, pkg := range transaction {
			packages = append(packages, v2PackageFromModel(pkg))
		}
		converted = append(converted, packages)
	}

	modules := result.Modules
	if modules == nil {
		modules = map[string]solver.ModuleConfig{}
	}

	return v2DepsolveResponse{
		Solver:       solverName,
		Transactions: converted,
		Repos:        v2Repositories(result.Repositories),
		Modules:      modules,
		SBOM:         result.SBOM,
	}, nil
}

func (v2Codec) SerializeDump(solverName string, result *solver.DumpResult) interface{} {
	return v2PackagesResponse{
		Solver:   solverName,
		Packages: v2Packages(result.Packages),
		Repos:    v2Repositories(result.Repositories),
	}
}

func (v2Codec) SerializeSearch(solverName string, result *solver.SearchResult) interface{} {
	return v2PackagesResponse{
		Solver:   solverName,
		Packages: v2Packages(result.Packages),
		Repos:    v2Repositories(result.Repositories),
	}
}

func v2Packages(pkgs []solver.Package) []v2Package {
	converted := make([]v2Package, 0, len(pkgs))
	for _, pkg := range pkgs {
		converted = append(converted, v2PackageFromModel(pkg))
	}
	return converted
}
