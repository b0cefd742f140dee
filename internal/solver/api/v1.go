package api

import (
	"encoding/json"

	"github.com/osbuild/osbuild-depsolve/internal/solver"
)

// v1Codec implements the legacy wire format. It predates the
// api_version field: dump and search responses are bare package lists
// with a reduced field set, and the depsolve response carries only the
// final transaction.
type v1Codec struct{}

type v1Repository struct {
	ID             *string         `json:"id"`
	Name           string          `json:"name"`
	BaseURL        json.RawMessage `json:"baseurl"`
	Metalink       string          `json:"metalink"`
	Mirrorlist     string          `json:"mirrorlist"`
	GPGCheck       *bool           `json:"gpgcheck"`
	RepoGPGCheck   *bool           `json:"repo_gpgcheck"`
	GPGKey         json.RawMessage `json:"gpgkey"`
	GPGKeys        []string        `json:"gpgkeys"`
	SSLVerify      *bool           `json:"sslverify"`
	SSLCACert      string          `json:"sslcacert"`
	SSLClientKey   string          `json:"sslclientkey"`
	SSLClientCert  string          `json:"sslclientcert"`
	MetadataExpire string          `json:"metadata_expire"`
	ModuleHotfixes *bool           `json:"module_hotfixes"`
}

// parseRepositoryV1 is lenient about GPG keys for backward
// compatibility: the singular gpgkey field may be a string or a list
// and is merged with the plural gpgkeys field.
func parseRepositoryV1(raw json.RawMessage) (solver.Repository, error) {
	if !isJSONDict(raw) {
		return solver.Repository{}, solver.InvalidRequestError("Invalid repository config: Repository config must be a dict")
	}
	var repo v1Repository
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
		switch jsonTypeName(repo.GPGKey) {
		case "str":
			var key string
			if err := json.Unmarshal(repo.GPGKey, &key); err != nil {
				return solver.Repository{}, solver.InvalidRequestError("Invalid repository config: %v", err)
			}
			gpgkeys = append(gpgkeys, key)
		case "list":
			var keys []string
			if err := json.Unmarshal(repo.GPGKey, &keys); err != nil {
				return solver.Repository{}, solver.InvalidRequestError("Invalid repository config: %v", err)
			}
			gpgkeys = append(gpgkeys, keys...)
		default:
			return solver.Repository{}, solver.InvalidRequestError(
				"Invalid repository config: 'gpgkey' must be a string or a list, got %s", jsonTypeName(repo.GPGKey))
		}
	}
	gpgkeys = append(gpgkeys, repo.GPGKeys...)

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
	})
}

func (v1Codec) ParseRequest(data []byte) (solver.Request, error) {
	return parseRequest(data, parseOptions{
		parseRepository: parseRepositoryV1,
		gateByCommand:   true,
	})
}

// v1DumpPackage is the reduced package shape of V1 dump and search
// responses.
type v1DumpPackage struct {
	Name        string `json:"name"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	URL         string `json:"url"`
	RepoID      string `json:"repo_id"`
	Epoch       int    `json:"epoch"`
	Version     string `json:"version"`
	Release     string `json:"release"`
	Arch        string `json:"arch"`
	BuildTime   string `json:"buildtime"`
	License     string `json:"license"`
}

// v1DepsolvePackage is the reduced package shape of V1 depsolve
// responses.
type v1DepsolvePackage struct {
	Name           string `json:"name"`
	Epoch          int    `json:"epoch"`
	Version        string `json:"version"`
	Release        string `json:"release"`
	Arch           string `json:"arch"`
	RepoID         string `json:"repo_id"`
	Path           string `json:"path"`
	RemoteLocation string `json:"remote_location"`
	Checksum       string `json:"checksum"`
}

// v1ResponseRepository exposes gpgkeys as the resolved key contents,
// not the configured key URLs.
type v1ResponseRepository struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	BaseURL       []string `json:"baseurl"`
	Metalink      string   `json:"metalink"`
	Mirrorlist    string   `json:"mirrorlist"`
	GPGCheck      *bool    `json:"gpgcheck"`
	RepoGPGCheck  *bool    `json:"repo_gpgcheck"`
	GPGKeys       []string `json:"gpgkeys"`
	SSLVerify     *bool    `json:"sslverify"`
	SSLCACert     string   `json:"sslcacert"`
	SSLClientKey  string   `json:"sslclientkey"`
	SSLClientCert string   `json:"sslclientcert"`
}

type v1DepsolveResponse struct {
	Solver   string                          `json:"solver"`
	Packages []v1DepsolvePackage             `json:"packages"`
	Repos    map[string]v1ResponseRepository `json:"repos"`
	Modules  map[string]solver.ModuleConfig  `json:"modules"`
	SBOM     interface{}                     `json:"sbom,omitempty"`
}

func v1DumpPackageFromModel(pkg solver.Package) v1DumpPackage {
	return v1DumpPackage{
		Name:        pkg.Name,
		Summary:     pkg.Summary,
		Description: pkg.Description,
		URL:         pkg.URL,
		RepoID:      pkg.RepoID,
		Epoch:       pkg.Epoch,
		Version:     pkg.Version,
		Release:     pkg.Release,
		Arch:        pkg.Arch,
		BuildTime:   pkg.BuildTimeRFC3339(),
		License:     pkg.License,
	}
}

func v1DepsolvePackageFromModel(pkg solver.Package) (v1DepsolvePackage, error) {
	if len(pkg.RemoteLocations) == 0 {
		return v1DepsolvePackage{}, solver.InternalError("package %s has no remote locations", pkg.FullNEVRA())
	}
	checksum := ""
	if pkg.Checksum != nil {
		checksum = pkg.Checksum.String()
	}
	return v1DepsolvePackage{
		Name:           pkg.Name,
		Epoch:          pkg.Epoch,
		Version:        pkg.Version,
		Release:        pkg.Release,
		Arch:           pkg.Arch,
		RepoID:         pkg.RepoID,
		Path:           pkg.Location,
		RemoteLocation: pkg.RemoteLocations[0],
		Checksum:       checksum,
	}, nil
}

func v1RepositoryFromModel(repo solver.Repository) v1ResponseRepository {
	return v1ResponseRepository{
		ID:            repo.ID,
		Name:          repo.Name,
		BaseURL:       repo.BaseURLs,
		Metalink:      repo.Metalink,
		Mirrorlist:    repo.Mirrorlist,
		GPGCheck:      repo.GPGCheck,
		RepoGPGCheck:  repo.RepoGPGCheck,
		GPGKeys:       repo.ResolvedKeys,
		SSLVerify:     repo.SSLVerify,
		SSLCACert:     repo.SSLCACert,
		SSLClientKey:  repo.SSLClientKey,
		SSLClientCert: repo.SSLClientCert,
	}
}

// SerializeDepsolve emits the final cumulative transaction only: V1
// consumers expect a single flat package list.
func (v1Codec) SerializeDepsolve(solverName string, result *solver.DepsolveResult) (interface{}, error) {
	var lastTransaction []solver.Package
	if len(result.Transactions) > 0 {
		lastTransaction = result.Transactions[len(result.Transactions)-1]
	}

	packages := make([]v1DepsolvePackage, 0, len(lastTransaction))
	for _, pkg := range lastTransaction {
		p, err := v1DepsolvePackageFromModel(pkg)
		if err != nil {
			return nil, err
		}
		packages = append(packages, p)
	}

	repos := make(map[string]v1ResponseRepository, len(result.Repositories))
	for _, repo := range result.Repositories {
		repos[repo.ID] = v1RepositoryFromModel(repo)
	}

	modules := result.Modules
	if modules == nil {
		modules = map[string]solver.ModuleConfig{}
	}

	return v1DepsolveResponse{
		Solver:   solverName,
		Packages: packages,
		Repos:    repos,
		Modules:  modules,
		SBOM:     result.SBOM,
	}, nil
}

func (v1Codec) SerializeDump(solverName string, result *solver.DumpResult) interface{} {
	packages := make([]v1DumpPackage, 0, len(result.Packages))
	for _, pkg := range result.Packages {
		packages = append(packages, v1DumpPackageFromModel(pkg))
	}
	return packages
}

func (v1Codec) SerializeSearch(solverName string, result *solver.SearchResult) interface{} {
	packages := make([]v1DumpPackage, 0, len(result.Packages))
	for _, pkg := range result.Packages {
		packages = append(packages, v1DumpPackageFromModel(pkg))
	}
	return packages
}
