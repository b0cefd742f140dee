package solver

// Command is a solver command carried by a request.
type Command string

const (
	CommandDepsolve Command = "depsolve"
	CommandDump     Command = "dump"
	CommandSearch   Command = "search"
)

// Commands lists every supported command, in the order error messages
// name them.
var Commands = []Command{CommandDepsolve, CommandDump, CommandSearch}

// Transaction is one unit of dependency resolution. Transactions are
// evaluated in order, each resolving on top of the install set of the
// previous one.
type Transaction struct {
	// PackageSpecs are package names, NEVRAs, or globs to install.
	// Module specs are carried here too, prefixed with "@" and
	// containing a ":".
	PackageSpecs []string

	// ExcludeSpecs are package specs excluded from resolution.
	ExcludeSpecs []string

	// RepoIDs restricts resolution to these repositories when set.
	RepoIDs []string

	// ModuleEnableSpecs are module streams to enable before resolving.
	ModuleEnableSpecs []string

	// InstallWeakDeps selects weak dependency installation for this
	// transaction only.
	InstallWeakDeps bool
}

// NewTransaction validates the one transaction invariant: there must be
// something to install.
func NewTransaction(t Transaction) (Transaction, error) {
	if len(t.PackageSpecs) == 0 {
		return Transaction{}, InvalidRequestError("Depsolve transaction must contain at least one package specification")
	}
	return t, nil
}

// SBOMRequest asks for an SBOM document to be attached to a depsolve
// response.
type SBOMRequest struct {
	Type string
}

const SBOMTypeSPDX = "spdx"

func NewSBOMRequest(sbomType string) (SBOMRequest, error) {
	if sbomType == "" {
		return SBOMRequest{}, InvalidRequestError("SBOM type cannot be empty")
	}
	if sbomType != SBOMTypeSPDX {
		return SBOMRequest{}, InvalidRequestError("Unsupported SBOM type '%s'. Supported types: spdx", sbomType)
	}
	return SBOMRequest{Type: sbomType}, nil
}

// DepsolveArgs are the arguments of the depsolve command.
type DepsolveArgs struct {
	Transactions []Transaction
	SBOM         *SBOMRequest
}

func NewDepsolveArgs(transactions []Transaction, sbom *SBOMRequest) (DepsolveArgs, error) {
	if len(transactions) == 0 {
		return DepsolveArgs{}, InvalidRequestError("Depsolve command must contain at least one transaction")
	}
	return DepsolveArgs{Transactions: transactions, SBOM: sbom}, nil
}

// SearchArgs are the arguments of the search command.
type SearchArgs struct {
	// Packages are name patterns: exact names, globs, or "*text*"
	// substring patterns.
	Packages []string

	// Latest keeps only the latest EVR per name and architecture.
	Latest bool
}

func NewSearchArgs(packages []string, latest bool) (SearchArgs, error) {
	if len(packages) == 0 {
		return SearchArgs{}, InvalidRequestError("Search command must contain at least one package specification")
	}
	return SearchArgs{Packages: packages, Latest: latest}, nil
}

// Config is the backend configuration shared by every command.
type Config struct {
	Arch       string
	ReleaseVer string
	CacheDir   string

	// ModulePlatformID is the platform pseudo-module, e.g. "platform:el8".
	ModulePlatformID string
	Proxy            string

	// Repos and RootDir configure the repositories: at least one of the
	// two must be given. RootDir points at an alternate root tree whose
	// etc/yum.repos.d is loaded in addition to Repos.
	Repos   []Repository
	RootDir string

	// OptionalMetadata names extra metadata types ("filelists", ...)
	// the backend should load.
	OptionalMetadata []string
}

// NewConfig validates the required configuration fields.
func NewConfig(cfg Config) (Config, error) {
	required := []struct {
		name  string
		value string
	}{
		{"arch", cfg.Arch},
		{"releasever", cfg.ReleaseVer},
		{"cachedir", cfg.CacheDir},
	}
	for _, field := range required {
		if field.value == "" {
			return Config{}, InvalidRequestError("Field '%s' is required", field.name)
		}
	}
	if len(cfg.Repos) == 0 && cfg.RootDir == "" {
		return Config{}, InvalidRequestError("No 'repos' or 'root_dir' specified")
	}
	return cfg, nil
}

// Request is the version-agnostic, validated form of one incoming
// request.
type Request struct {
	Command Command
	Config  Config

	// Exactly one of the two is set, matching Command.
	Depsolve *DepsolveArgs
	Search   *SearchArgs
}

// NewRequest validates the command and its arguments against each
// other: depsolve args only with depsolve, search args only with
// search, and each required for its own command.
func NewRequest(command Command, cfg Config, depsolve *DepsolveArgs, search *SearchArgs) (Request, error) {
	if command == "" {
		return Request{}, InvalidRequestError("Field 'command' is required")
	}
	valid := false
	for _, c := range Commands {
		if command == c {
			valid = true
			break
		}
	}
	if !valid {
		return Request{}, InvalidRequestError("Invalid command '%s': must be one of %s", command, CommandNames())
	}

	if command != CommandDepsolve && depsolve != nil {
		return Request{}, InvalidRequestError("Depsolve arguments are only supported with 'depsolve' command")
	}
	if command != CommandSearch && search != nil {
		return Request{}, InvalidRequestError("Search arguments are only supported with 'search' command")
	}
	if command == CommandDepsolve && depsolve == nil {
		return Request{}, InvalidRequestError("Depsolve command requires arguments")
	}
	if command == CommandSearch && search == nil {
		return Request{}, InvalidRequestError("Search command requires arguments")
	}

	return Request{
		Command:  command,
		Config:   cfg,
		Depsolve: depsolve,
		Search:   search,
	}, nil
}

// CommandNames joins the supported commands for error messages.
func CommandNames() string {
	s := ""
	for i, c := range Commands {
		if i > 0 {
			s += ", "
		}
		s += string(c)
	}
	return s
}
