package dnf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/osbuild/osbuild-depsolve/internal/solver"
)

// The backends drive a libdnf engine through a small helper binary: one
// JSON request on stdin, one JSON response on stdout, errors as a
// {kind, reason} envelope with a nonzero exit. The helpers link against
// libdnf or libdnf5; everything above the raw engine calls lives here.
const (
	dnf4EngineCommand = "/usr/libexec/osbuild-depsolve/libdnf-json"
	dnf5EngineCommand = "/usr/libexec/osbuild-depsolve/libdnf5-json"
)

// engineRepo is a repository as the engine expects it: GPG keys are
// always URLs, inline keys have been written to files beforehand.
type engineRepo struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	BaseURLs       []string `json:"baseurl,omitempty"`
	Metalink       string   `json:"metalink,omitempty"`
	Mirrorlist     string   `json:"mirrorlist,omitempty"`
	GPGCheck       *bool    `json:"gpgcheck,omitempty"`
	RepoGPGCheck   *bool    `json:"repo_gpgcheck,omitempty"`
	GPGKeys        []string `json:"gpgkey,omitempty"`
	SSLVerify      *bool    `json:"sslverify,omitempty"`
	SSLCACert      string   `json:"sslcacert,omitempty"`
	SSLClientKey   string   `json:"sslclientkey,omitempty"`
	SSLClientCert  string   `json:"sslclientcert,omitempty"`
	MetadataExpire string   `json:"metadata_expire,omitempty"`
	ModuleHotfixes *bool    `json:"module_hotfixes,omitempty"`
	Priority       *int     `json:"priority,omitempty"`
	Username       string   `json:"username,omitempty"`
	Password       string   `json:"password,omitempty"`
	Headers        []string `json:"headers,omitempty"`
}

type engineDependency struct {
	Name     string `json:"name"`
	Relation string `json:"relation,omitempty"`
	Version  string `json:"version,omitempty"`
}

type engineChecksum struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// enginePackage mirrors the libdnf package attributes the domain model
// carries. Action is only set on resolve responses.
type enginePackage struct {
	Name    string `json:"name"`
	Epoch   int    `json:"epoch"`
	Version string `json:"version"`
	Release string `json:"release"`
	Arch    string `json:"arch"`

	RepoID          string          `json:"repo_id"`
	Location        string          `json:"location"`
	RemoteLocations []string        `json:"remote_locations"`
	Checksum        *engineChecksum `json:"checksum"`
	HeaderChecksum  *engineChecksum `json:"header_checksum"`

	Group        string `json:"group"`
	DownloadSize int64  `json:"download_size"`
	InstallSize  int64  `json:"install_size"`
	License      string `json:"license"`
	SourceRPM    string `json:"source_rpm"`
	BuildTime    int64  `json:"build_time"`
	Packager     string `json:"packager"`
	Vendor       string `json:"vendor"`
	URL          string `json:"url"`
	Summary      string `json:"summary"`
	Description  string `json:"description"`
	Reason       string `json:"reason"`

	Provides        []engineDependency `json:"provides"`
	Requires        []engineDependency `json:"requires"`
	RequiresPre     []engineDependency `json:"requires_pre"`
	Conflicts       []engineDependency `json:"conflicts"`
	Obsoletes       []engineDependency `json:"obsoletes"`
	RegularRequires []engineDependency `json:"regular_requires"`
	Recommends      []engineDependency `json:"recommends"`
	Suggests        []engineDependency `json:"suggests"`
	Enhances        []engineDependency `json:"enhances"`
	Supplements     []engineDependency `json:"supplements"`

	Files []string `json:"files"`

	Action string `json:"action,omitempty"`
}

// inbound transaction actions add a package to the install set.
// Removals and no-ops are skipped when collecting transaction results.
var inboundActions = map[string]bool{
	"install":   true,
	"upgrade":   true,
	"downgrade": true,
	"reinstall": true,
}

type engineSearch struct {
	Exact      []string `json:"exact,omitempty"`
	Globs      []string `json:"globs,omitempty"`
	Substrings []string `json:"substrings,omitempty"`
	Latest     bool     `json:"latest,omitempty"`
}

type engineRequest struct {
	Command          string       `json:"command"`
	Arch             string       `json:"arch"`
	ReleaseVer       string       `json:"releasever"`
	ModulePlatformID string       `json:"module_platform_id,omitempty"`
	Proxy            string       `json:"proxy,omitempty"`
	CacheDir         string       `json:"cachedir"`
	PersistDir       string       `json:"persistdir"`
	OptionalMetadata []string     `json:"optional-metadata,omitempty"`
	Repos            []engineRepo `json:"repos"`

	// resolve only
	Installed         []string `json:"installed,omitempty"`
	PackageSpecs      []string `json:"package-specs,omitempty"`
	ExcludeSpecs      []string `json:"exclude-specs,omitempty"`
	RepoIDs           []string `json:"repo-ids,omitempty"`
	ModuleEnableSpecs []string `json:"module-enable-specs,omitempty"`
	InstallWeakDeps   bool     `json:"install_weak_deps,omitempty"`

	// search only
	Search *engineSearch `json:"search,omitempty"`
}

type engineResponse struct {
	Packages []enginePackage                `json:"packages"`
	Repos    map[string]engineRepo          `json:"repos"`
	Modules  map[string]solver.ModuleConfig `json:"modules"`
}

// parseError turns the error envelope of a failed engine run into a
// solver error. Output that is not a valid envelope becomes an internal
// error carrying the raw text.
func parseError(output []byte) error {
	var e solver.Error
	if err := json.Unmarshal(output, &e); err != nil || e.Kind == "" {
		return solver.InternalError("engine failed without a parseable error: %q", string(bytes.TrimSpace(output)))
	}
	return e
}

// run executes one engine request and returns the decoded response.
func run(engineCmd []string, req *engineRequest) (*engineResponse, error) {
	if len(engineCmd) == 0 {
		return nil, fmt.Errorf("engine command undefined")
	}
	ex := engineCmd[0]
	args := make([]string, len(engineCmd)-1)
	if len(engineCmd) > 1 {
		args = engineCmd[1:]
	}
	cmd := exec.Command(ex, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	cmd.Stderr = os.Stderr
	stdout := new(bytes.Buffer)
	cmd.Stdout = stdout

	err = cmd.Start()
	if err != nil {
		return nil, err
	}

	err = json.NewEncoder(stdin).Encode(req)
	if err != nil {
		return nil, err
	}
	stdin.Close()

	err = cmd.Wait()
	output := stdout.Bytes()
	if runError, ok := err.(*exec.ExitError); ok && runError.ExitCode() != 0 {
		return nil, parseError(output)
	}
	if err != nil {
		return nil, err
	}

	var response engineResponse
	if err := json.Unmarshal(output, &response); err != nil {
		return nil, solver.InternalError("failed to unmarshal engine response: %v", err)
	}
	return &response, nil
}

func packageFromEngine(pkg enginePackage) solver.Package {
	return solver.Package{
		Name:            pkg.Name,
		Epoch:           pkg.Epoch,
		Version:         pkg.Version,
		Release:         pkg.Release,
		Arch:            pkg.Arch,
		Group:           pkg.Group,
		DownloadSize:    pkg.DownloadSize,
		InstallSize:     pkg.InstallSize,
		License:         pkg.License,
		SourceRPM:       pkg.SourceRPM,
		BuildTime:       pkg.BuildTime,
		Packager:        pkg.Packager,
		Vendor:          pkg.Vendor,
		URL:             pkg.URL,
		Summary:         pkg.Summary,
		Description:     pkg.Description,
		Provides:        dependenciesFromEngine(pkg.Provides),
		Requires:        dependenciesFromEngine(pkg.Requires),
		RequiresPre:     dependenciesFromEngine(pkg.RequiresPre),
		Conflicts:       dependenciesFromEngine(pkg.Conflicts),
		Obsoletes:       dependenciesFromEngine(pkg.Obsoletes),
		RegularRequires: dependenciesFromEngine(pkg.RegularRequires),
		Recommends:      dependenciesFromEngine(pkg.Recommends),
		Suggests:        dependenciesFromEngine(pkg.Suggests),
		Enhances:        dependenciesFromEngine(pkg.Enhances),
		Supplements:     dependenciesFromEngine(pkg.Supplements),
		Files:           pkg.Files,
		Location:        pkg.Location,
		RemoteLocations: pkg.RemoteLocations,
		Checksum:        checksumFromEngine(pkg.Checksum),
		HeaderChecksum:  checksumFromEngine(pkg.HeaderChecksum),
		RepoID:          pkg.RepoID,
		Reason:          pkg.Reason,
	}
}

func dependenciesFromEngine(deps []engineDependency) []solver.Dependency {
	if deps == nil {
		return nil
	}
	converted := make([]solver.Dependency, 0, len(deps))
	for _, dep := range deps {
		converted = append(converted, solver.Dependency{
			Name:     dep.Name,
			Relation: dep.Relation,
			Version:  dep.Version,
		})
	}
	return converted
}

func checksumFromEngine(checksum *engineChecksum) *solver.Checksum {
	if checksum == nil {
		return nil
	}
	return &solver.Checksum{Algorithm: checksum.Algorithm, Value: checksum.Value}
}
