// Mock libdnf engine
//
// Returns fake but correctly shaped responses to resolve, dump and
// search requests. Tests configure a dnf solver to run this program
// via SetEngineCommand(). The canned response file maps the engine
// command to the response document; search requests are answered by
// filtering the canned dump packages with the request's patterns.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gobwas/glob"
)

type engineRequest struct {
	Command string        `json:"command"`
	Search  *searchFilter `json:"search"`
}

type searchFilter struct {
	Exact      []string `json:"exact"`
	Globs      []string `json:"globs"`
	Substrings []string `json:"substrings"`
	Latest     bool     `json:"latest"`
}

type packageList struct {
	Packages []map[string]interface{} `json:"packages"`
	Repos    json.RawMessage          `json:"repos"`
	Modules  json.RawMessage          `json:"modules"`
}

func maybeFail(err error) {
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func readRequest(r io.Reader) engineRequest {
	var req engineRequest
	maybeFail(json.NewDecoder(r).Decode(&req))
	return req
}

func readTestCase() string {
	if len(os.Args) != 2 {
		fail(errors.New("you must specify exactly one test case file"))
	}
	return os.Args[1]
}

// checkForError reports whether the canned response is an error
// envelope, in which case the engine exits nonzero.
func checkForError(msg json.RawMessage) bool {
	j := json.NewDecoder(bytes.NewReader(msg))
	j.DisallowUnknownFields()
	envelope := new(struct {
		Kind   string `json:"kind"`
		Reason string `json:"reason"`
	})
	return j.Decode(envelope) == nil
}

func matches(name string, filter *searchFilter) bool {
	if filter == nil {
		return false
	}
	for _, exact := range filter.Exact {
		if name == exact {
			return true
		}
	}
	for _, pattern := range filter.Globs {
		if glob.MustCompile(pattern).Match(name) {
			return true
		}
	}
	for _, substring := range filter.Substrings {
		if strings.Contains(name, substring) {
			return true
		}
	}
	return false
}

// searchResponse filters the canned dump packages by the request's
// search patterns.
func searchResponse(dump json.RawMessage, req engineRequest) json.RawMessage {
	var list packageList
	maybeFail(json.Unmarshal(dump, &list))

	filtered := packageList{
		Packages: []map[string]interface{}{},
		Repos:    list.Repos,
		Modules:  list.Modules,
	}
	for _, pkg := range list.Packages {
		name, _ := pkg["name"].(string)
		if matches(name, req.Search) {
			filtered.Packages = append(filtered.Packages, pkg)
		}
	}

	out, err := json.Marshal(filtered)
	maybeFail(err)
	return out
}

func main() {
	testFilePath := readTestCase()

	req := readRequest(os.Stdin)

	testFile, err := os.Open(testFilePath)
	if err != nil {
		fail(fmt.Errorf("failed to open test file %q", testFilePath))
	}
	defer testFile.Close()
	canned, err := io.ReadAll(testFile)
	if err != nil {
		fail(fmt.Errorf("failed to read test file %q", testFilePath))
	}

	responses := make(map[string]json.RawMessage)
	maybeFail(json.Unmarshal(canned, &responses))

	res := responses[req.Command]
	if req.Command == "search" {
		if _, ok := responses["search"]; !ok {
			res = searchResponse(responses["dump"], req)
		}
	}

	fmt.Print(string(res))

	if checkForError(res) {
		os.Exit(1)
	}
}
