package solver

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/osbuild-depsolve/internal/rhsm"
	"github.com/osbuild/osbuild-depsolve/internal/rhui"
)

// CredentialResolver injects host subscription secrets into the
// repositories of a request before a backend sees them.
//
// RHUI repositories are handled first: their SSL certificates come from
// the host's rhui*.repo files and, on AWS and GCP, the cloud identity
// headers are attached. Plain RHSM repositories get the entitlement
// certificates of the host's redhat.repo. Repository ids that received
// secrets either way are recorded so that response serialization can
// hide them again.
type CredentialResolver struct {
	// subscriptions is loaded lazily on the first repository that needs
	// it and reused for the rest of the resolution pass.
	subscriptions *rhsm.Subscriptions

	repoIDsWithRHSM map[string]bool

	loadSubscriptions     func() (*rhsm.Subscriptions, error)
	loadRHUISubscriptions func() (*rhsm.Subscriptions, error)
	identity              *rhui.IdentityClient
}

func NewCredentialResolver() *CredentialResolver {
	return &CredentialResolver{
		repoIDsWithRHSM:       make(map[string]bool),
		loadSubscriptions:     rhsm.LoadSystemSubscriptions,
		loadRHUISubscriptions: rhsm.LoadRHUISubscriptions,
		identity:              &rhui.IdentityClient{},
	}
}

// Resolve fills in the secrets of every repository flagged rhsm or rhui,
// modifying the slice elements in place.
func (r *CredentialResolver) Resolve(ctx context.Context, repos []Repository) error {
	var rhuiRepos, rhsmRepos []*Repository
	for i := range repos {
		repo := &repos[i]
		switch {
		case repo.RHUI:
			rhuiRepos = append(rhuiRepos, repo)
		case repo.RHSM:
			rhsmRepos = append(rhsmRepos, repo)
		}
	}

	if len(rhuiRepos) > 0 {
		if err := r.resolveRHUI(ctx, rhuiRepos); err != nil {
			return err
		}
	}

	for _, repo := range rhsmRepos {
		if err := r.resolveRHSM(repo); err != nil {
			return err
		}
	}

	return nil
}

func (r *CredentialResolver) resolveRHUI(ctx context.Context, repos []*Repository) error {
	subscriptions, err := r.loadRHUISubscriptions()
	if err != nil {
		return RepoError("%v", err)
	}

	provider := r.identity.DetectCloudProvider(ctx)
	logrus.Debugf("detected cloud provider: %q", provider)
	headers, err := r.identity.IdentityHeaders(ctx, provider)
	if err != nil {
		return RepoError("Error fetching cloud identity for RHUI repositories: %v", err)
	}

	for _, repo := range repos {
		secrets, err := subscriptions.GetSecrets(repo.URLs())
		if err != nil {
			// no baseurl matched, use the first RHUI repo's certs
			fallback, ok := subscriptions.First()
			if !ok {
				return RepoError("%v", err)
			}
			secrets = fallback
		}
		repo.SSLCACert = secrets.SSLCACert
		repo.SSLClientKey = secrets.SSLClientKey
		repo.SSLClientCert = secrets.SSLClientCert
		repo.Headers = headers
		r.repoIDsWithRHSM[repo.ID] = true
	}

	return nil
}

func (r *CredentialResolver) resolveRHSM(repo *Repository) error {
	if repo.SSLCACert != "" || repo.SSLClientKey != "" || repo.SSLClientCert != "" {
		return InvalidRequestError(
			"The sslcacert, sslclientkey, and sslclientcert fields cannot be set when rhsm: true is specified (repo_id: %s)",
			repo.ID)
	}

	urls := repo.URLs()

	if r.subscriptions == nil {
		subscriptions, err := r.loadSubscriptions()
		if err != nil {
			return NoRHSMSubscriptionsError(
				"The host system does not have any valid subscriptions. Subscribe it before specifying rhsm: true in repositories (error details: %v; repo_id: %s; repo_urls: [%s])",
				err, repo.ID, strings.Join(urls, ", "))
		}
		r.subscriptions = subscriptions
	}

	secrets, err := r.subscriptions.GetSecrets(urls)
	if err != nil {
		return NoRHSMSubscriptionsError("Error getting RHSM secrets for [%s]: %v", strings.Join(urls, ", "), err)
	}

	repo.SSLCACert = secrets.SSLCACert
	repo.SSLClientKey = secrets.SSLClientKey
	repo.SSLClientCert = secrets.SSLClientCert
	r.repoIDsWithRHSM[repo.ID] = true

	return nil
}

// SetRHSMFlag marks the repository according to whether credential
// resolution injected secrets into it. Backends call it on every
// repository they report so that serialization hides the secrets even
// when the caller did not set the flag itself.
func (r *CredentialResolver) SetRHSMFlag(repo *Repository) {
	repo.RHSM = r.repoIDsWithRHSM[repo.ID]
}

// RepoIDsWithRHSM lists the repositories that received host secrets.
func (r *CredentialResolver) RepoIDsWithRHSM() []string {
	ids := make([]string, 0, len(r.repoIDsWithRHSM))
	for id := range r.repoIDsWithRHSM {
		ids = append(ids, id)
	}
	return ids
}
