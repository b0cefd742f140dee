package spdx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/osbuild-depsolve/internal/sbom"
)

func spdxPkg(name string) *sbom.Package {
	return &sbom.Package{
		Name:              name,
		Version:           "1.0",
		Release:           "1.el9",
		Architecture:      "x86_64",
		DependsOn:         make(map[string]*sbom.Package),
		OptionalDependsOn: make(map[string]*sbom.Package),
	}
}

func TestDocumentFromPackages(t *testing.T) {
	bash := spdxPkg("bash")
	bash.LicenseDeclared = "GPL-3.0-or-later"
	bash.DownloadURL = "https://example.com/baseos/Packages/bash-1.0-1.el9.x86_64.rpm"
	bash.Homepage = "https://www.gnu.org/software/bash"
	bash.SourceRPM = "bash-1.0-1.el9.src.rpm"
	bash.BuildDate = time.Date(2021, 10, 7, 5, 40, 0, 0, time.UTC)
	bash.Checksums = map[sbom.ChecksumAlgorithm]string{sbom.ChecksumSHA256: "abc123"}

	glibc := spdxPkg("glibc")
	glibc.LicenseDeclared = "LGPL-2.1-or-later"
	bash.DependsOn[glibc.UUID()] = glibc

	completion := spdxPkg("bash-completion")
	completion.OptionalDependsOn[bash.UUID()] = bash

	doc := DocumentFromPackages([]*sbom.Package{bash, glibc, completion})

	assert.Equal(t, "SPDXRef-DOCUMENT", doc.ID)
	assert.Equal(t, "SPDX-2.3", doc.SpdxVersion)
	assert.Equal(t, "CC0-1.0", doc.DataLicense)
	assert.Equal(t, "sbom-by-osbuild-depsolve", doc.Name)
	assert.Contains(t, doc.DocumentNamespace, "https://osbuild.org/spdxdocs/sbom-by-osbuild-depsolve-")
	assert.Equal(t, []string{"Tool: osbuild-depsolve"}, doc.CreationInfo.Creators)
	assert.NotEmpty(t, doc.CreationInfo.Created)

	require.Len(t, doc.Packages, 3)
	p := doc.Packages[0]
	assert.Equal(t, "SPDXRef-"+bash.UUID(), p.ID)
	assert.Equal(t, "bash", p.Name)
	assert.Equal(t, "1.0", p.Version)
	assert.False(t, p.FilesAnalyzed)
	assert.Equal(t, "https://example.com/baseos/Packages/bash-1.0-1.el9.x86_64.rpm", p.DownloadLocation)
	assert.Equal(t, "Source RPM: bash-1.0-1.el9.src.rpm", p.SourceInfo)
	assert.Equal(t, "2021-10-07T05:40:00Z", p.BuiltDate)
	assert.Equal(t, []Checksum{{Algorithm: "SHA256", Value: "abc123"}}, p.Checksums)
	require.Len(t, p.ExternalRefs, 1)
	assert.Equal(t, "PACKAGE-MANAGER", p.ExternalRefs[0].Category)
	assert.Equal(t, "purl", p.ExternalRefs[0].Type)
	assert.Equal(t, bash.PURL(), p.ExternalRefs[0].Locator)

	// Packages without a download URL get NOASSERTION.
	assert.Equal(t, "NOASSERTION", doc.Packages[1].DownloadLocation)

	// One DESCRIBES per package, plus the dependency edges.
	var describes, dependsOn, optional []Relationship
	for _, rel := range doc.Relationships {
		switch rel.Type {
		case "DESCRIBES":
			describes = append(describes, rel)
		case "DEPENDS_ON":
			dependsOn = append(dependsOn, rel)
		case "OPTIONAL_DEPENDENCY_OF":
			optional = append(optional, rel)
		}
	}
	require.Len(t, describes, 3)
	assert.Equal(t, "SPDXRef-DOCUMENT", describes[0].Element)

	require.Len(t, dependsOn, 1)
	assert.Equal(t, "SPDXRef-"+bash.UUID(), dependsOn[0].Element)
	assert.Equal(t, "SPDXRef-"+glibc.UUID(), dependsOn[0].Related)

	// Optional dependencies point from the dependency to the package
	// that soft-requires it.
	require.Len(t, optional, 1)
	assert.Equal(t, "SPDXRef-"+bash.UUID(), optional[0].Element)
	assert.Equal(t, "SPDXRef-"+completion.UUID(), optional[0].Related)
}

func TestDocumentLicenses(t *testing.T) {
	first := spdxPkg("first")
	first.LicenseDeclared = "MIT"
	second := spdxPkg("second")
	second.LicenseDeclared = "MIT"
	third := spdxPkg("third")
	third.LicenseDeclared = "GPLv2+ and BSD"

	doc := DocumentFromPackages([]*sbom.Package{first, second, third})

	// Identical license texts share one extracted info entry.
	require.Len(t, doc.LicensingInfos, 2)
	byText := make(map[string]ExtractedLicensingInfo)
	for _, info := range doc.LicensingInfos {
		byText[info.ExtractedText] = info
	}
	require.Contains(t, byText, "MIT")
	require.Contains(t, byText, "GPLv2+ and BSD")

	// Packages reference licenses by extracted ID.
	assert.Equal(t, byText["MIT"].LicenseID, doc.Packages[0].LicenseDeclared)
	assert.Equal(t, byText["MIT"].LicenseID, doc.Packages[1].LicenseDeclared)
	assert.Equal(t, byText["GPLv2+ and BSD"].LicenseID, doc.Packages[2].LicenseDeclared)
}

func TestLicenseID(t *testing.T) {
	id := licenseID("GPLv2+ and BSD", "GPLv2+ and BSD")
	assert.Contains(t, id, "LicenseRef-GPLv2-and-BSD-")

	// Same text, same ID.
	assert.Equal(t, id, licenseID("GPLv2+ and BSD", "GPLv2+ and BSD"))

	// Without a name the ID is just the hash.
	hashOnly := licenseID("some text", "")
	assert.Contains(t, hashOnly, "LicenseRef-")
	assert.NotContains(t, hashOnly, "--")
}

func TestNormalizeLicenseName(t *testing.T) {
	cases := map[string]string{
		"MIT":             "MIT",
		"GPLv2+ and BSD":  "GPLv2-and-BSD",
		"Artistic 2.0":    "Artistic-2.0",
		"odd   spaces":    "odd-spaces",
		"trailing.-mixed": "trailing.mixed",
		"ASL 2.0 / MIT":   "ASL-2.0-MIT",
	}
	for input, expected := range cases {
		assert.Equal(t, expected, normalizeLicenseName(input), "input: %q", input)
	}
}

func TestSpdxTime(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	assert.Equal(t, "2021-10-07T04:40:00Z", spdxTime(time.Date(2021, 10, 7, 5, 40, 0, 0, loc)))
}

func TestDocumentNamespaceUnique(t *testing.T) {
	a := DocumentFromPackages(nil)
	b := DocumentFromPackages(nil)
	assert.NotEqual(t, a.DocumentNamespace, b.DocumentNamespace)
	assert.Equal(t, "SPDXRef-DOCUMENT", a.ID)
}
