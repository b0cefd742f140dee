// Package spdx renders an SBOM package graph as an SPDX 2.3 document,
// as described on https://spdx.github.io/spdx-spec/v2.3/.
package spdx

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/osbuild/osbuild-depsolve/internal/sbom"
)

const (
	spdxVersion = "SPDX-2.3"
	dataLicense = "CC0-1.0"
	documentID  = "SPDXRef-DOCUMENT"

	noAssertion = "NOASSERTION"

	toolName = "osbuild-depsolve"
)

// CreationInfo is the document creation metadata.
type CreationInfo struct {
	Created  string   `json:"created"`
	Creators []string `json:"creators"`
}

// Checksum is a package checksum.
type Checksum struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"checksumValue"`
}

// ExternalRef points at an external identifier for a package, here
// always a package URL.
type ExternalRef struct {
	Category string `json:"referenceCategory"`
	Type     string `json:"referenceType"`
	Locator  string `json:"referenceLocator"`
}

// Package is a single SPDX package entry.
type Package struct {
	ID               string        `json:"SPDXID"`
	Name             string        `json:"name"`
	DownloadLocation string        `json:"downloadLocation"`
	FilesAnalyzed    bool          `json:"filesAnalyzed"`
	Version          string        `json:"versionInfo,omitempty"`
	Checksums        []Checksum    `json:"checksums,omitempty"`
	Homepage         string        `json:"homepage,omitempty"`
	SourceInfo       string        `json:"sourceInfo,omitempty"`
	LicenseDeclared  string        `json:"licenseDeclared,omitempty"`
	Summary          string        `json:"summary,omitempty"`
	Description      string        `json:"description,omitempty"`
	ExternalRefs     []ExternalRef `json:"externalRefs,omitempty"`
	BuiltDate        string        `json:"builtDate,omitempty"`
}

// ExtractedLicensingInfo carries the verbatim text of a license that is
// not on the SPDX license list.
type ExtractedLicensingInfo struct {
	LicenseID     string `json:"licenseId"`
	ExtractedText string `json:"extractedText"`
	Name          string `json:"name,omitempty"`
}

// Relationship relates two SPDX elements.
type Relationship struct {
	Element string `json:"spdxElementId"`
	Type    string `json:"relationshipType"`
	Related string `json:"relatedSpdxElement"`
}

// Document is a complete SPDX 2.3 document.
type Document struct {
	ID                string                   `json:"SPDXID"`
	CreationInfo      CreationInfo             `json:"creationInfo"`
	DataLicense       string                   `json:"dataLicense"`
	Name              string                   `json:"name"`
	SpdxVersion       string                   `json:"spdxVersion"`
	DocumentNamespace string                   `json:"documentNamespace"`
	Packages          []Package                `json:"packages,omitempty"`
	LicensingInfos    []ExtractedLicensingInfo `json:"hasExtractedLicensingInfos,omitempty"`
	Relationships     []Relationship           `json:"relationships,omitempty"`
}

var (
	licenseIDInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	licenseIDDuplicates   = regexp.MustCompile(`([.-])[.-]+`)
)

// normalizeLicenseName makes a license name usable inside an SPDX
// license ID: only letters, digits, "." and "-" survive, and runs of
// separators collapse.
func normalizeLicenseName(name string) string {
	normalized := licenseIDInvalidChars.ReplaceAllString(name, "-")
	return licenseIDDuplicates.ReplaceAllString(normalized, "$1")
}

// licenseID derives a unique LicenseRef ID from the license text, and
// the license name when one is known.
func licenseID(extractedText, name string) string {
	hash := sha256.Sum256([]byte(extractedText))
	if name != "" {
		return fmt.Sprintf("LicenseRef-%s-%x", normalizeLicenseName(name), hash)
	}
	return fmt.Sprintf("LicenseRef-%x", hash)
}

// spdxTime formats a timestamp the way SPDX requires: UTC, second
// precision, trailing "Z".
func spdxTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// DocumentFromPackages builds an SPDX 2.3 document for a package graph.
// Each package becomes one SPDX package described by the document root,
// with one DEPENDS_ON relationship per dependency edge and one
// OPTIONAL_DEPENDENCY_OF per soft-dependency edge. License strings are
// wrapped as extracted licensing info and deduplicated by license ID
// across the document.
func DocumentFromPackages(pkgs []*sbom.Package) *Document {
	docName := "sbom-by-" + toolName
	doc := &Document{
		ID: documentID,
		CreationInfo: CreationInfo{
			Created:  spdxTime(time.Now()),
			Creators: []string{"Tool: " + toolName},
		},
		DataLicense:       dataLicense,
		Name:              docName,
		SpdxVersion:       spdxVersion,
		DocumentNamespace: fmt.Sprintf("https://osbuild.org/spdxdocs/%s-%s", docName, uuid.New()),
	}

	licenses := make(map[string]ExtractedLicensingInfo)

	for _, pkg := range pkgs {
		p := Package{
			ID:               "SPDXRef-" + pkg.UUID(),
			Name:             pkg.Name,
			DownloadLocation: noAssertion,
			FilesAnalyzed:    false,
			Version:          pkg.Version,
			Homepage:         pkg.Homepage,
			SourceInfo:       pkg.SourceInfo(),
			Summary:          pkg.Summary,
			Description:      pkg.Description,
			ExternalRefs: []ExternalRef{{
				Category: "PACKAGE-MANAGER",
				Type:     "purl",
				Locator:  pkg.PURL(),
			}},
		}

		if pkg.DownloadURL != "" {
			p.DownloadLocation = pkg.DownloadURL
		}

		if pkg.LicenseDeclared != "" {
			license := ExtractedLicensingInfo{
				LicenseID:     licenseID(pkg.LicenseDeclared, pkg.LicenseDeclared),
				ExtractedText: pkg.LicenseDeclared,
				Name:          pkg.LicenseDeclared,
			}
			licenses[license.LicenseID] = license
			p.LicenseDeclared = license.LicenseID
		}

		for algorithm, value := range pkg.Checksums {
			p.Checksums = append(p.Checksums, Checksum{Algorithm: string(algorithm), Value: value})
		}
		sort.Slice(p.Checksums, func(i, j int) bool {
			return p.Checksums[i].Algorithm < p.Checksums[j].Algorithm
		})

		if !pkg.BuildDate.IsZero() {
			p.BuiltDate = spdxTime(pkg.BuildDate)
		}

		doc.Packages = append(doc.Packages, p)

		doc.Relationships = append(doc.Relationships, Relationship{
			Element: documentID,
			Type:    "DESCRIBES",
			Related: p.ID,
		})

		for _, depID := range sortedKeys(pkg.DependsOn) {
			doc.Relationships = append(doc.Relationships, Relationship{
				Element: p.ID,
				Type:    "DEPENDS_ON",
				Related: "SPDXRef-" + depID,
			})
		}

		for _, depID := range sortedKeys(pkg.OptionalDependsOn) {
			doc.Relationships = append(doc.Relationships, Relationship{
				Element: "SPDXRef-" + depID,
				Type:    "OPTIONAL_DEPENDENCY_OF",
				Related: p.ID,
			})
		}
	}

	for _, id := range sortedLicenseIDs(licenses) {
		doc.LicensingInfos = append(doc.LicensingInfos, licenses[id])
	}

	return doc
}

func sortedKeys(pkgs map[string]*sbom.Package) []string {
	keys := make([]string, 0, len(pkgs))
	for key := range pkgs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedLicenseIDs(licenses map[string]ExtractedLicensingInfo) []string {
	ids := make([]string, 0, len(licenses))
	for id := range licenses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
