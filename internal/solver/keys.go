package solver

import (
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// RootDirPath translates an absolute host path to its location under an
// alternate root tree. With an empty rootDir the path is returned
// unchanged.
func RootDirPath(path, rootDir string) string {
	if path == "" || rootDir == "" {
		return path
	}
	return filepath.Join(rootDir, strings.TrimLeft(path, "/"))
}

// ReadKeys fetches the contents of GPG keys given as file:// or
// http(s):// URLs. file:// paths are translated under rootDir when it
// is set.
func ReadKeys(paths []string, rootDir string) ([]string, error) {
	keys := make([]string, 0, len(paths))
	for _, path := range paths {
		u, err := url.Parse(path)
		if err != nil {
			return nil, GPGKeyReadError("error loading gpg key from %s: %v", path, err)
		}
		switch u.Scheme {
		case "file":
			keyPath := RootDirPath(u.Path, rootDir)
			key, err := os.ReadFile(keyPath)
			if err != nil {
				return nil, GPGKeyReadError("error loading gpg key from %s: %v", keyPath, err)
			}
			keys = append(keys, string(key))
		case "http", "https":
			key, err := fetchKey(path)
			if err != nil {
				return nil, GPGKeyReadError("error reading remote gpg key at %s: %v", path, err)
			}
			keys = append(keys, key)
		default:
			return nil, GPGKeyReadError("unknown url scheme for gpg key: %s (%s)", u.Scheme, path)
		}
	}
	return keys, nil
}

func fetchKey(url string) (string, error) {
	client := retryablehttp.NewClient()
	client.Logger = nil
	resp, err := client.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
