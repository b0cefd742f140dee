package solver

// Solver resolves package specifications against a set of repositories.
// Implementations wrap one native resolver engine; they are constructed
// per request, after credential resolution, and are not safe for
// concurrent use.
type Solver interface {
	// Name identifies the backend in responses.
	Name() string

	// Dump lists every package available in the configured
	// repositories.
	Dump() (*DumpResult, error)

	// Depsolve resolves the transactions in order, each on top of the
	// install set of the previous one.
	Depsolve(args DepsolveArgs) (*DepsolveResult, error)

	// Search lists the available packages matching the given name
	// patterns.
	Search(args SearchArgs) (*SearchResult, error)
}
