package dnf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/osbuild/osbuild-depsolve/internal/solver"
)

const pgpKeyMarker = "-----BEGIN PGP PUBLIC KEY BLOCK-----"

// engineRepoFromModel converts a request repository for the engine.
// GPG keys given as inline PEM blocks are written to files under the
// persist dir and referenced by file:// URL, because the engine only
// accepts key URLs. The files live as long as the persist dir, which is
// cleaned up when the process exits.
func engineRepoFromModel(repo solver.Repository, persistDir string) (engineRepo, error) {
	keys := make([]string, 0, len(repo.GPGKeys))
	for _, key := range repo.GPGKeys {
		if !strings.HasPrefix(key, pgpKeyMarker) {
			keys = append(keys, key)
			continue
		}
		keyDir := filepath.Join(persistDir, "gpgkeys")
		if err := os.MkdirAll(keyDir, 0o700); err != nil {
			return engineRepo{}, solver.RepoError("failed to create gpg key directory: %v", err)
		}
		keyFile, err := os.CreateTemp(keyDir, "key-*.asc")
		if err != nil {
			return engineRepo{}, solver.RepoError("failed to write gpg key file: %v", err)
		}
		if _, err := keyFile.WriteString(key); err != nil {
			keyFile.Close()
			return engineRepo{}, solver.RepoError("failed to write gpg key file: %v", err)
		}
		keyFile.Close()
		keys = append(keys, fmt.Sprintf("file://%s", keyFile.Name()))
	}

	return engineRepo{
		ID:             repo.ID,
		Name:           repo.Name,
		BaseURLs:       repo.BaseURLs,
		Metalink:       repo.Metalink,
		Mirrorlist:     repo.Mirrorlist,
		GPGCheck:       repo.GPGCheck,
		RepoGPGCheck:   repo.RepoGPGCheck,
		GPGKeys:        keys,
		SSLVerify:      repo.SSLVerify,
		SSLCACert:      repo.SSLCACert,
		SSLClientKey:   repo.SSLClientKey,
		SSLClientCert:  repo.SSLClientCert,
		MetadataExpire: repo.MetadataExpire,
		ModuleHotfixes: repo.ModuleHotfixes,
		Priority:       repo.Priority,
		Username:       repo.Username,
		Password:       repo.Password,
		Headers:        repo.Headers,
	}, nil
}

// loadRootDirRepos reads the repository definitions under
// rootDir/etc/yum.repos.d. SSL certificate paths are rewritten to live
// under the root, so host-relative paths in on-disk config resolve
// against the alternate root tree. Repositories whose id was already
// supplied in the request are skipped: those were configured explicitly
// and must not be rewritten.
func loadRootDirRepos(rootDir string, requestRepoIDs map[string]bool) ([]engineRepo, error) {
	reposDir := filepath.Join(rootDir, "etc/yum.repos.d")
	entries, err := os.ReadDir(reposDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, solver.RepoError("failed to read repository directory %s: %v", reposDir, err)
	}

	var repos []engineRepo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".repo") {
			continue
		}
		path := filepath.Join(reposDir, entry.Name())
		fileRepos, err := parseRepoFile(path, rootDir, requestRepoIDs)
		if err != nil {
			return nil, err
		}
		repos = append(repos, fileRepos...)
	}
	return repos, nil
}

func parseRepoFile(path, rootDir string, requestRepoIDs map[string]bool) ([]engineRepo, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, solver.RepoError("failed to parse repository file %s: %v", path, err)
	}

	var repos []engineRepo
	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		if requestRepoIDs[section.Name()] {
			continue
		}
		if section.HasKey("enabled") && !section.Key("enabled").MustBool(true) {
			continue
		}

		repo := engineRepo{ID: section.Name()}
		if section.HasKey("name") {
			repo.Name = section.Key("name").String()
		}
		if section.HasKey("baseurl") {
			repo.BaseURLs = strings.Fields(section.Key("baseurl").String())
		}
		if section.HasKey("metalink") {
			repo.Metalink = section.Key("metalink").String()
		}
		if section.HasKey("mirrorlist") {
			repo.Mirrorlist = section.Key("mirrorlist").String()
		}
		if section.HasKey("gpgcheck") {
			repo.GPGCheck = solver.Bool(section.Key("gpgcheck").MustBool(false))
		}
		if section.HasKey("repo_gpgcheck") {
			repo.RepoGPGCheck = solver.Bool(section.Key("repo_gpgcheck").MustBool(false))
		}
		if section.HasKey("gpgkey") {
			repo.GPGKeys = strings.Fields(section.Key("gpgkey").String())
		}
		if section.HasKey("sslverify") {
			repo.SSLVerify = solver.Bool(section.Key("sslverify").MustBool(true))
		}
		if section.HasKey("metadata_expire") {
			repo.MetadataExpire = section.Key("metadata_expire").String()
		}
		if section.HasKey("module_hotfixes") {
			repo.ModuleHotfixes = solver.Bool(section.Key("module_hotfixes").MustBool(false))
		}
		if section.HasKey("priority") {
			repo.Priority = solver.Int(section.Key("priority").MustInt(99))
		}
		if section.HasKey("username") {
			repo.Username = section.Key("username").String()
		}
		if section.HasKey("password") {
			repo.Password = section.Key("password").String()
		}

		repo.SSLCACert = solver.RootDirPath(section.Key("sslcacert").String(), rootDir)
		repo.SSLClientKey = solver.RootDirPath(section.Key("sslclientkey").String(), rootDir)
		repo.SSLClientCert = solver.RootDirPath(section.Key("sslclientcert").String(), rootDir)

		repos = append(repos, repo)
	}
	return repos, nil
}

// modelRepoFromEngine converts a repository reported by the engine back
// into the domain model.
func modelRepoFromEngine(repo engineRepo) solver.Repository {
	return solver.Repository{
		ID:             repo.ID,
		Name:           repo.Name,
		BaseURLs:       repo.BaseURLs,
		Metalink:       repo.Metalink,
		Mirrorlist:     repo.Mirrorlist,
		GPGCheck:       repo.GPGCheck,
		RepoGPGCheck:   repo.RepoGPGCheck,
		GPGKeys:        repo.GPGKeys,
		SSLVerify:      repo.SSLVerify,
		SSLCACert:      repo.SSLCACert,
		SSLClientKey:   repo.SSLClientKey,
		SSLClientCert:  repo.SSLClientCert,
		MetadataExpire: repo.MetadataExpire,
		ModuleHotfixes: repo.ModuleHotfixes,
		Priority:       repo.Priority,
		Username:       repo.Username,
		Password:       repo.Password,
	}
}
