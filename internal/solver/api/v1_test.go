package api

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/osbuild-depsolve/internal/solver"
)

func v1Parse(t *testing.T, command, arguments string) (solver.Request, error) {
	t.Helper()
	request := fmt.Sprintf(`{
		"command": "%s",
		"arch": "x86_64",
		"releasever": "9",
		"cachedir": "/tmp/cache",
		"arguments": %s
	}`, command, arguments)
	return v1Codec{}.ParseRequest([]byte(request))
}

func TestV1ParseRepositoryGPGKeyForms(t *testing.T) {
	// The singular gpgkey field accepts a bare string.
	parsed, err := v1Parse(t, "dump", `{
		"repos": [{"id": "r", "baseurl": ["https://example.com"], "gpgkey": "https://example.com/key1"}]
	}`)
	require.NoError(t, err)
	require.Len(t, parsed.Config.Repos, 1)
	assert.Equal(t, []string{"https://example.com/key1"}, parsed.Config.Repos[0].GPGKeys)

	// A list works too, and merges with the plural gpgkeys field.
	parsed, err = v1Parse(t, "dump", `{
		"repos": [{
			"id": "r",
			"baseurl": ["https://example.com"],
			"gpgkey": ["https://example.com/key1", "https://example.com/key2"],
			"gpgkeys": ["https://example.com/key3"]
		}]
	}`)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/key1",
		"https://example.com/key2",
		"https://example.com/key3",
	}, parsed.Config.Repos[0].GPGKeys)

	_, err = v1Parse(t, "dump", `{
		"repos": [{"id": "r", "baseurl": ["https://example.com"], "gpgkey": 42}]
	}`)
	assert.EqualError(t, err, "Invalid repository config: 'gpgkey' must be a string or a list, got int")
}

func TestV1ParseRepositoryErrors(t *testing.T) {
	_, err := v1Parse(t, "dump", `{"repos": [42]}`)
	assert.EqualError(t, err, "Invalid repository config: Repository config must be a dict")

	_, err = v1Parse(t, "dump", `{"repos": [{"baseurl": ["https://example.com"]}]}`)
	assert.EqualError(t, err, "Missing required field 'id' in 'repos' item configuration")

	_, err = v1Parse(t, "dump", `{"repos": [{"id": "r", "baseurl": "https://example.com"}]}`)
	assert.EqualError(t, err, "Invalid repository config: 'baseurl' must be a list of URLs, got str")
}

func TestV1CommandGatesArguments(t *testing.T) {
	// V1 ignores arguments that do not belong to the request command:
	// a dump request with transactions is valid and carries no
	// depsolve arguments.
	parsed, err := v1Parse(t, "dump", `{
		"repos": [{"id": "r", "baseurl": ["https://example.com"]}],
		"transactions": [{"package-specs": ["kernel"]}],
		"search": {"packages": ["vim*"]}
	}`)
	require.NoError(t, err)
	assert.Nil(t, parsed.Depsolve)
	assert.Nil(t, parsed.Search)

	// Even malformed off-command arguments are ignored.
	parsed, err = v1Parse(t, "search", `{
		"repos": [{"id": "r", "baseurl": ["https://example.com"]}],
		"transactions": "garbage",
		"search": {"packages": ["vim*"], "latest": true}
	}`)
	require.NoError(t, err)
	assert.Nil(t, parsed.Depsolve)
	require.NotNil(t, parsed.Search)
	assert.Equal(t, []string{"vim*"}, parsed.Search.Packages)
	assert.True(t, parsed.Search.Latest)
}

func TestV1TransactionErrorsUnwrapped(t *testing.T) {
	_, err := v1Parse(t, "depsolve", `{
		"repos": [{"id": "r", "baseurl": ["https://example.com"]}],
		"transactions": [{"exclude-specs": ["nano"]}]
	}`)
	assert.EqualError(t, err, "Depsolve transaction must contain at least one package specification")
}

func TestV1SerializeDepsolve(t *testing.T) {
	gpgCheck := true
	result := &solver.DepsolveResult{
		Transactions: [][]solver.Package{
			{
				{Name: "glibc", Version: "2.34", Release: "1.el9", Arch: "x86_64"},
			},
			{
				{
					Name:            "glibc",
					Version:         "2.34",
					Release:         "1.el9",
					Arch:            "x86_64",
					RepoID:          "baseos",
					Location:        "Packages/glibc-2.34-1.el9.x86_64.rpm",
					RemoteLocations: []string{"https://example.com/baseos/Packages/glibc-2.34-1.el9.x86_64.rpm"},
					Checksum:        &solver.Checksum{Algorithm: "sha256", Value: "cafe"},
				},
				{
					Name:            "kernel",
					Epoch:           1,
					Version:         "6.8.0",
					Release:         "1.el9",
					Arch:            "x86_64",
					RepoID:          "baseos",
					Location:        "Packages/kernel-6.8.0-1.el9.x86_64.rpm",
					RemoteLocations: []string{"https://example.com/baseos/Packages/kernel-6.8.0-1.el9.x86_64.rpm"},
					Checksum:        &solver.Checksum{Algorithm: "sha256", Value: "beef"},
				},
			},
		},
		Repositories: []solver.Repository{
			{
				ID:           "baseos",
				Name:         "BaseOS",
				BaseURLs:     []string{"https://example.com/baseos"},
				GPGCheck:     &gpgCheck,
				GPGKeys:      []string{"https://example.com/RPM-GPG-KEY"},
				ResolvedKeys: []string{"-----BEGIN PGP PUBLIC KEY BLOCK-----"},
			},
		},
	}

	serialized, err := v1Codec{}.SerializeDepsolve("dnf", result)
	require.NoError(t, err)

	var response struct {
		Solver   string                            `json:"solver"`
		Packages []map[string]interface{}          `json:"packages"`
		Repos    map[string]map[string]interface{} `json:"repos"`
		Modules  map[string]interface{}            `json:"modules"`
	}
	require.NoError(t, json.Unmarshal(marshal(t, serialized), &response))

	assert.Equal(t, "dnf", response.Solver)

	// Only the final cumulative transaction is emitted.
	require.Len(t, response.Packages, 2)
	assert.Equal(t, "glibc", response.Packages[0]["name"])
	assert.Equal(t, "Packages/glibc-2.34-1.el9.x86_64.rpm", response.Packages[0]["path"])
	assert.Equal(t, "https://example.com/baseos/Packages/glibc-2.34-1.el9.x86_64.rpm", response.Packages[0]["remote_location"])
	assert.Equal(t, "sha256:cafe", response.Packages[0]["checksum"])
	assert.Equal(t, float64(1), response.Packages[1]["epoch"])

	// Keys are the resolved contents, not the configured URLs.
	require.Contains(t, response.Repos, "baseos")
	assert.Equal(t, []interface{}{"-----BEGIN PGP PUBLIC KEY BLOCK-----"}, response.Repos["baseos"]["gpgkeys"])

	assert.NotNil(t, response.Modules)
	assert.Empty(t, response.Modules)
}

func TestV1SerializeDepsolveMissingRemoteLocation(t *testing.T) {
	result := &solver.DepsolveResult{
		Transactions: [][]solver.Package{
			{
				{Name: "local", Version: "1.0", Release: "1", Arch: "noarch"},
			},
		},
	}
	_, err := v1Codec{}.SerializeDepsolve("dnf", result)
	assert.EqualError(t, err, "package local-0:1.0-1.noarch has no remote locations")
	assert.Equal(t, solver.ErrorKindInternal, solver.KindOf(err))
}

func TestV1SerializeDump(t *testing.T) {
	result := &solver.DumpResult{
		Packages: []solver.Package{
			{
				Name:        "vim-minimal",
				Summary:     "A minimal version of the VIM editor",
				Version:     "9.0",
				Release:     "1.el9",
				Arch:        "x86_64",
				RepoID:      "baseos",
				BuildTime:   1633585200,
				License:     "Vim AND MIT",
				URL:         "https://www.vim.org/",
				Description: "A minimal installation of VIM.",
			},
		},
		Repositories: []solver.Repository{
			{ID: "baseos", BaseURLs: []string{"https://example.com/baseos"}},
		},
	}

	// V1 dump responses are bare package lists.
	serialized := v1Codec{}.SerializeDump("dnf", result)
	var packages []map[string]interface{}
	require.NoError(t, json.Unmarshal(marshal(t, serialized), &packages))
	require.Len(t, packages, 1)
	assert.Equal(t, "vim-minimal", packages[0]["name"])
	assert.Equal(t, "2021-10-07T05:40:00Z", packages[0]["buildtime"])
	assert.Equal(t, "Vim AND MIT", packages[0]["license"])
	assert.NotContains(t, packages[0], "checksum")
}

func TestV1SerializeSearch(t *testing.T) {
	result := &solver.SearchResult{
		Packages: []solver.Package{
			{Name: "httpd", Version: "2.4", Release: "1.el9", Arch: "x86_64", RepoID: "appstream"},
		},
	}
	serialized := v1Codec{}.SerializeSearch("dnf", result)
	var packages []v1DumpPackage
	require.NoError(t, json.Unmarshal(marshal(t, serialized), &packages))
	require.Len(t, packages, 1)
	assert.Equal(t, "httpd", packages[0].Name)
	assert.Equal(t, "appstream", packages[0].RepoID)
	// Zero build time serializes as an empty string in the legacy
	// format.
	assert.Equal(t, "", packages[0].BuildTime)
}
