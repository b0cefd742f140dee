// Package api implements the versioned wire formats of the depsolve
// service: request parsing and response serialization for the V1
// (legacy, reduced) and V2 (full model) JSON shapes.
package api

import (
	"bytes"
	"encoding/json"

	"github.com/osbuild/osbuild-depsolve/internal/solver"
)

// Version identifies a wire format. Requests without an api_version
// field are V1, which predates versioning.
type Version int

const (
	V1 Version = 1
	V2 Version = 2
)

// Codec parses requests and serializes results in one wire format
// version.
type Codec interface {
	ParseRequest(data []byte) (solver.Request, error)

	// SerializeDepsolve can fail: the V1 shape requires fields that
	// are optional in the domain model.
	SerializeDepsolve(solverName string, result *solver.DepsolveResult) (interface{}, error)
	SerializeDump(solverName string, result *solver.DumpResult) interface{}
	SerializeSearch(solverName string, result *solver.SearchResult) interface{}
}

// ForVersion returns the codec of a wire format version.
func ForVersion(version Version) (Codec, error) {
	switch version {
	case V1:
		return v1Codec{}, nil
	case V2:
		return v2Codec{}, nil
	default:
		return nil, solver.InvalidRequestError("Invalid API version: %d", version)
	}
}

// ParseRequest detects the version of a raw request and parses it with
// the matching codec. The version is returned so the response can be
// serialized in the same format.
func ParseRequest(data []byte) (solver.Request, Version, error) {
	var envelope struct {
		APIVersion *int `json:"api_version"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return solver.Request{}, 0, solver.InvalidRequestError("Invalid request: %v", err)
	}

	version := V1
	if envelope.APIVersion != nil {
		version = Version(*envelope.APIVersion)
	}

	codec, err := ForVersion(version)
	if err != nil {
		return solver.Request{}, 0, err
	}
	request, err := codec.ParseRequest(data)
	if err != nil {
		return solver.Request{}, 0, err
	}
	return request, version, nil
}

// requestJSON is the top-level request shape shared by both versions.
// Required fields are pointers so that a missing field can be told
// apart from an empty one.
type requestJSON struct {
	APIVersion       *int            `json:"api_version"`
	Command          *string         `json:"command"`
	Arch             *string         `json:"arch"`
	ReleaseVer       *string         `json:"releasever"`
	CacheDir         *string         `json:"cachedir"`
	ModulePlatformID string          `json:"module_platform_id"`
	Proxy            string          `json:"proxy"`
	Arguments        json.RawMessage `json:"arguments"`
}

type argumentsJSON struct {
	Repos            json.RawMessage `json:"repos"`
	RootDir          string          `json:"root_dir"`
	OptionalMetadata json.RawMessage `json:"optional-metadata"`
	Transactions     json.RawMessage `json:"transactions"`
	Search           json.RawMessage `json:"search"`
	SBOM             json.RawMessage `json:"sbom"`
}

type transactionJSON struct {
	PackageSpecs      []string `json:"package-specs"`
	ExcludeSpecs      []string `json:"exclude-specs"`
	RepoIDs           []string `json:"repo-ids"`
	ModuleEnableSpecs []string `json:"module-enable-specs"`
	InstallWeakDeps   bool     `json:"install_weak_deps"`
}

type searchJSON struct {
	Packages json.RawMessage `json:"packages"`
	Latest   bool            `json:"latest"`
}

type sbomJSON struct {
	Type *string `json:"type"`
}

// jsonTypeName names the type of a raw JSON value the way the
// validation error messages expect.
func jsonTypeName(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "null"
	}
	switch trimmed[0] {
	case '{':
		return "dict"
	case '[':
		return "list"
	case '"':
		return "str"
	case 't', 'f':
		return "bool"
	case 'n':
		return "null"
	default:
		if bytes.ContainsRune(trimmed, '.') {
			return "float"
		}
		return "int"
	}
}

func isJSONList(raw json.RawMessage) bool {
	return jsonTypeName(raw) == "list"
}

func isJSONDict(raw json.RawMessage) bool {
	return jsonTypeName(raw) == "dict"
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || jsonTypeName(raw) == "null"
}

// parseOptions carries the version-specific parsing differences: V1
// only looks at the arguments matching the request command, while V2
// parses everything it is given; the repository shapes also differ.
type parseOptions struct {
	parseRepository func(raw json.RawMessage) (solver.Repository, error)

	// gateByCommand skips transactions unless the command is depsolve
	// and search arguments unless the command is search.
	gateByCommand bool

	// wrapTransactionErrors prefixes per-transaction validation errors
	// with "Invalid depsolve transaction: ".
	wrapTransactionErrors bool
}

func parseRequest(data []byte, opts parseOptions) (solver.Request, error) {
	var raw requestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return solver.Request{}, solver.InvalidRequestError("Invalid request: %v", err)
	}

	for _, field := range []struct {
		name    string
		present bool
	}{
		{"command", raw.Command != nil},
		{"arch", raw.Arch != nil},
		{"releasever", raw.ReleaseVer != nil},
		{"cachedir", raw.CacheDir != nil},
		{"arguments", raw.Arguments != nil},
	} {
		if !field.present {
			return solver.Request{}, solver.InvalidRequestError("Missing required field '%s'", field.name)
		}
	}

	command := solver.Command(*raw.Command)
	valid := false
	for _, c := range solver.Commands {
		if command == c {
			valid = true
			break
		}
	}
	if !valid {
		return solver.Request{}, solver.InvalidRequestError(
			"Invalid command '%s': must be one of %s", *raw.Command, solver.CommandNames())
	}

	if !isJSONDict(raw.Arguments) {
		return solver.Request{}, solver.InvalidRequestError("Field 'arguments' must be a dict")
	}
	var arguments argumentsJSON
	if err := json.Unmarshal(raw.Arguments, &arguments); err != nil {
		return solver.Request{}, solver.InvalidRequestError("Invalid request arguments: %v", err)
	}

	var repos []solver.Repository
	if !isJSONNull(arguments.Repos) {
		if !isJSONList(arguments.Repos) {
			return solver.Request{}, solver.InvalidRequestError("Field 'repos' must be a list")
		}
		var rawRepos []json.RawMessage
		if err := json.Unmarshal(arguments.Repos, &rawRepos); err != nil {
			return solver.Request{}, solver.InvalidRequestError("Invalid repository config: %v", err)
		}
		for _, rawRepo := range rawRepos {
			repo, err := opts.parseRepository(rawRepo)
			if err != nil {
				return solver.Request{}, err
			}
			repos = append(repos, repo)
		}
	}

	var optionalMetadata []string
	if !isJSONNull(arguments.OptionalMetadata) {
		if !isJSONList(arguments.OptionalMetadata) {
			return solver.Request{}, solver.InvalidRequestError("Field 'optional-metadata' must be a list")
		}
		if err := json.Unmarshal(arguments.OptionalMetadata, &optionalMetadata); err != nil {
			return solver.Request{}, solver.InvalidRequestError("Field 'optional-metadata' must be a list")
		}
	}

	var transactions []solver.Transaction
	parseTransactions := !isJSONNull(arguments.Transactions)
	if opts.gateByCommand && command != solver.CommandDepsolve {
		parseTransactions = false
	}
	if parseTransactions {
		if !isJSONList(arguments.Transactions) {
			return solver.Request{}, solver.InvalidRequestError("Field 'transactions' must be a list")
		}
		var rawTransactions []transactionJSON
		if err := json.Unmarshal(arguments.Transactions, &rawTransactions); err != nil {
			return solver.Request{}, solver.InvalidRequestError("Invalid depsolve transaction: %v", err)
		}
		for _, rawTransaction := range rawTransactions {
			transaction, err := solver.NewTransaction(solver.Transaction{
				PackageSpecs:      rawTransaction.PackageSpecs,
				ExcludeSpecs:      rawTransaction.ExcludeSpecs,
				RepoIDs:           rawTransaction.RepoIDs,
				ModuleEnableSpecs: rawTransaction.ModuleEnableSpecs,
				InstallWeakDeps:   rawTransaction.InstallWeakDeps,
			})
			if err != nil {
				if opts.wrapTransactionErrors {
					return solver.Request{}, solver.InvalidRequestError("Invalid depsolve transaction: %v", err)
				}
				return solver.Request{}, err
			}
			transactions = append(transactions, transaction)
		}
	}

	var searchArgs *solver.SearchArgs
	parseSearch := !isJSONNull(arguments.Search)
	if opts.gateByCommand && command != solver.CommandSearch {
		parseSearch = false
	}
	if parseSearch {
		if !isJSONDict(arguments.Search) {
			return solver.Request{}, solver.InvalidRequestError("Field 'search' must be a dict")
		}
		var rawSearch searchJSON
		if err := json.Unmarshal(arguments.Search, &rawSearch); err != nil {
			return solver.Request{}, solver.InvalidRequestError("Invalid search arguments: %v", err)
		}
		if isJSONNull(rawSearch.Packages) {
			return solver.Request{}, solver.InvalidRequestError("Missing required field 'packages' in 'search' dict")
		}
		if !isJSONList(rawSearch.Packages) {
			return solver.Request{}, solver.InvalidRequestError("Field 'packages' must be a list")
		}
		var packages []string
		if err := json.Unmarshal(rawSearch.Packages, &packages); err != nil {
			return solver.Request{}, solver.InvalidRequestError("Invalid search arguments: %v", err)
		}
		args, err := solver.NewSearchArgs(packages, rawSearch.Latest)
		if err != nil {
			return solver.Request{}, err
		}
		searchArgs = &args
	}

	var sbomRequest *solver.SBOMRequest
	if !isJSONNull(arguments.SBOM) {
		if !isJSONDict(arguments.SBOM) {
			return solver.Request{}, solver.InvalidRequestError("Field 'sbom' must be a dict")
		}
		var rawSBOM sbomJSON
		if err := json.Unmarshal(arguments.SBOM, &rawSBOM); err != nil {
			return solver.Request{}, solver.InvalidRequestError("Invalid value for 'type' in 'sbom': %v", err)
		}
		if rawSBOM.Type == nil {
			return solver.Request{}, solver.InvalidRequestError("Missing required field 'type' in 'sbom'")
		}
		sbom, err := solver.NewSBOMRequest(*rawSBOM.Type)
		if err != nil {
			return solver.Request{}, solver.InvalidRequestError("Invalid value for 'type' in 'sbom': %v", err)
		}
		if command != solver.CommandDepsolve {
			return solver.Request{}, solver.InvalidRequestError("Field 'sbom' is only supported with 'depsolve' command")
		}
		sbomRequest = &sbom
	}

	var depsolveArgs *solver.DepsolveArgs
	if parseTransactions {
		args, err := solver.NewDepsolveArgs(transactions, sbomRequest)
		if err != nil {
			return solver.Request{}, err
		}
		depsolveArgs = &args
	}

	config, err := solver.NewConfig(solver.Config{
		Arch:             *raw.Arch,
		ReleaseVer:       *raw.ReleaseVer,
		CacheDir:         *raw.CacheDir,
		ModulePlatformID: raw.ModulePlatformID,
		Proxy:            raw.Proxy,
		Repos:            repos,
		RootDir:          arguments.RootDir,
		OptionalMetadata: optionalMetadata,
	})
	if err != nil {
		return solver.Request{}, err
	}

	return solver.NewRequest(command, config, depsolveArgs, searchArgs)
}
