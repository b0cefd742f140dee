// Package dnf implements the DNF4 and DNF5 solver backends. Both share
// the logic in this package and differ only in the libdnf engine helper
// they execute.
package dnf

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/osbuild-depsolve/internal/sbom"
	"github.com/osbuild/osbuild-depsolve/internal/sbom/spdx"
	"github.com/osbuild/osbuild-depsolve/internal/solver"
)

// Solver is a DNF-backed solver. It is constructed per request:
// credential resolution and repository preparation happen once, in the
// constructor, and every operation reuses the prepared repositories.
type Solver struct {
	name      string
	engineCmd []string

	config     solver.Config
	persistDir string
	resolver   *solver.CredentialResolver
	cache      *metadataCache

	repos          []engineRepo
	requestRepoIDs map[string]bool
}

// default limit for the metadata cache, 1 GiB
const defaultMaxCacheSize uint64 = 1024 * 1024 * 1024

// NewDNF4 constructs a solver backed by the legacy libdnf engine.
func NewDNF4(ctx context.Context, config solver.Config, persistDir string) (*Solver, error) {
	return newSolver(ctx, "dnf", []string{dnf4EngineCommand}, config, persistDir)
}

// NewDNF5 constructs a solver backed by the libdnf5 engine.
func NewDNF5(ctx context.Context, config solver.Config, persistDir string) (*Solver, error) {
	return newSolver(ctx, "dnf5", []string{dnf5EngineCommand}, config, persistDir)
}

func newSolver(ctx context.Context, name string, engineCmd []string, config solver.Config, persistDir string) (*Solver, error) {
	s := &Solver{
		name:           name,
		engineCmd:      engineCmd,
		config:         config,
		persistDir:     persistDir,
		resolver:       solver.NewCredentialResolver(),
		cache:          newMetadataCache(config.CacheDir, defaultMaxCacheSize),
		requestRepoIDs: make(map[string]bool),
	}

	if err := s.resolver.Resolve(ctx, config.Repos); err != nil {
		return nil, err
	}

	for _, repo := range config.Repos {
		engineRepo, err := engineRepoFromModel(repo, persistDir)
		if err != nil {
			return nil, err
		}
		s.repos = append(s.repos, engineRepo)
		s.requestRepoIDs[repo.ID] = true
	}

	if config.RootDir != "" {
		rootDirRepos, err := loadRootDirRepos(config.RootDir, s.requestRepoIDs)
		if err != nil {
			return nil, err
		}
		s.repos = append(s.repos, rootDirRepos...)
	}

	if len(s.repos) == 0 {
		return nil, solver.NoReposError("There are no enabled repositories")
	}

	return s, nil
}

func (s *Solver) Name() string {
	return s.name
}

// SetEngineCommand overrides the engine helper, used by tests.
func (s *Solver) SetEngineCommand(cmd ...string) {
	s.engineCmd = cmd
}

// SetMaxCacheSize changes the metadata cache limit.
func (s *Solver) SetMaxCacheSize(maxSize uint64) {
	s.cache.maxSize = maxSize
}

func (s *Solver) runEngine(req *engineRequest) (*engineResponse, error) {
	if err := s.cache.clean(); err != nil {
		logrus.Warnf("cleaning metadata cache: %v", err)
	}
	return run(s.engineCmd, req)
}

func (s *Solver) newEngineRequest(command string) *engineRequest {
	return &engineRequest{
		Command:          command,
		Arch:             s.config.Arch,
		ReleaseVer:       s.config.ReleaseVer,
		ModulePlatformID: s.config.ModulePlatformID,
		Proxy:            s.config.Proxy,
		CacheDir:         s.config.CacheDir,
		PersistDir:       s.persistDir,
		OptionalMetadata: s.config.OptionalMetadata,
		Repos:            s.repos,
	}
}

// Depsolve resolves the transactions in order. Every transaction is
// resolved against a world that already contains the previous
// transaction's result, so each result is a superset of the one before
// it.
func (s *Solver) Depsolve(args solver.DepsolveArgs) (*solver.DepsolveResult, error) {
	var transactions [][]solver.Package
	var installed []string
	modules := make(map[string]solver.ModuleConfig)
	reportedRepos := make(map[string]engineRepo)

	for _, transaction := range args.Transactions {
		req := s.newEngineRequest("resolve")
		req.Installed = installed
		req.PackageSpecs = transaction.PackageSpecs
		req.ExcludeSpecs = transaction.ExcludeSpecs
		req.RepoIDs = transaction.RepoIDs
		req.ModuleEnableSpecs = transaction.ModuleEnableSpecs
		req.InstallWeakDeps = transaction.InstallWeakDeps

		response, err := s.runEngine(req)
		if err != nil {
			return nil, err
		}

		var packages []solver.Package
		for _, pkg := range response.Packages {
			if !inboundActions[pkg.Action] {
				continue
			}
			packages = append(packages, packageFromEngine(pkg))
		}
		// The dnf5 engine reports packages in install order, the legacy
		// engine alphabetically. Sort so the backends agree.
		solver.SortPackages(packages)

		transactions = append(transactions, packages)
		installed = installed[:0]
		for _, pkg := range packages {
			installed = append(installed, pkg.FullNEVRA())
		}

		for name, module := range response.Modules {
			modules[name] = module
		}
		for id, repo := range response.Repos {
			reportedRepos[id] = repo
		}
	}

	if len(args.Transactions) > 0 && len(transactions[len(transactions)-1]) == 0 {
		return nil, solver.DepsolveError("Empty transaction results")
	}

	lastTransaction := transactions[len(transactions)-1]
	repositories, err := s.resultRepositories(reportedRepos, lastTransaction, true)
	if err != nil {
		return nil, err
	}

	result := &solver.DepsolveResult{
		Transactions: transactions,
		Repositories: repositories,
		Modules:      modules,
	}

	if args.SBOM != nil {
		logrus.Debugf("generating %s SBOM for %d packages", args.SBOM.Type, len(lastTransaction))
		result.SBOM = spdx.DocumentFromPackages(sbom.FromPackages(lastTransaction))
	}

	return result, nil
}

// Dump lists every available package, sorted by name and then by full
// NEVRA.
func (s *Solver) Dump() (*solver.DumpResult, error) {
	response, err := s.runEngine(s.newEngineRequest("dump"))
	if err != nil {
		return nil, err
	}

	packages := make([]solver.Package, 0, len(response.Packages))
	for _, pkg := range response.Packages {
		packages = append(packages, packageFromEngine(pkg))
	}
	sortByNameAndNEVRA(packages)

	repositories, err := s.resultRepositories(response.Repos, packages, false)
	if err != nil {
		return nil, err
	}

	return &solver.DumpResult{Packages: packages, Repositories: repositories}, nil
}

// Search lists the available packages whose names match the given
// patterns. A pattern with a leading and trailing "*" matches as a
// substring, any other pattern containing "*" matches as a glob, and
// the rest match exactly.
func (s *Solver) Search(args solver.SearchArgs) (*solver.SearchResult, error) {
	req := s.newEngineRequest("search")
	search := classifySearch(args)
	req.Search = &search

	response, err := s.runEngine(req)
	if err != nil {
		return nil, err
	}

	packages := make([]solver.Package, 0, len(response.Packages))
	for _, pkg := range response.Packages {
		packages = append(packages, packageFromEngine(pkg))
	}
	sortByNameAndNEVRA(packages)

	repositories, err := s.resultRepositories(response.Repos, packages, false)
	if err != nil {
		return nil, err
	}

	return &solver.SearchResult{Packages: packages, Repositories: repositories}, nil
}

func classifySearch(args solver.SearchArgs) engineSearch {
	search := engineSearch{Latest: args.Latest}
	for _, name := range args.Packages {
		if strings.Contains(name, "*") {
			if strings.HasPrefix(name, "*") && strings.HasSuffix(name, "*") {
				search.Substrings = append(search.Substrings, strings.ReplaceAll(name, "*", ""))
			} else {
				search.Globs = append(search.Globs, name)
			}
		} else {
			search.Exact = append(search.Exact, name)
		}
	}
	return search
}

// resultRepositories converts the repositories reported by the engine
// into the domain model, keeping only those a result package came from.
// For depsolve responses the configured GPG keys are also resolved to
// their contents, which the V1 format exposes.
func (s *Solver) resultRepositories(reported map[string]engineRepo, packages []solver.Package, resolveKeys bool) ([]solver.Repository, error) {
	touched := make(map[string]bool, len(packages))
	for _, pkg := range packages {
		touched[pkg.RepoID] = true
	}

	var repositories []solver.Repository
	for id, engineRepo := range reported {
		if !touched[id] {
			continue
		}
		repo := modelRepoFromEngine(engineRepo)
		if resolveKeys {
			// keys of repos loaded from the root dir live under it
			rootDir := ""
			if !s.requestRepoIDs[repo.ID] {
				rootDir = s.config.RootDir
			}
			keys, err := solver.ReadKeys(repo.GPGKeys, rootDir)
			if err != nil {
				return nil, err
			}
			repo.ResolvedKeys = keys
		}
		s.resolver.SetRHSMFlag(&repo)
		repositories = append(repositories, repo)
	}

	return solver.SortRepositories(repositories), nil
}

func sortByNameAndNEVRA(packages []solver.Package) {
	sort.Slice(packages, func(i, j int) bool {
		if packages[i].Name != packages[j].Name {
			return packages[i].Name < packages[j].Name
		}
		return packages[i].FullNEVRA() < packages[j].FullNEVRA()
	})
}
