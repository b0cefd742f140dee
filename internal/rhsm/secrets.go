// Package rhsm handles subscriptions of the host system.
package rhsm

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

type subscription struct {
	id            string
	matchURL      *regexp.Regexp
	sslCACert     string
	sslClientKey  string
	sslClientCert string
}

// Subscriptions encapsulates all available subscriptions of the host
// system, parsed from its yum repo files.
type Subscriptions struct {
	available []subscription
	fallback  *Secrets
}

// Secrets is a set of CA certificate, client key, and client
// certificate paths for one repository.
type Secrets struct {
	SSLCACert     string
	SSLClientKey  string
	SSLClientCert string
}

const (
	systemRepoFile     = "/etc/yum.repos.d/redhat.repo"
	entitlementKeyGlob = "/etc/pki/entitlement/*-key.pem"
	entitlementCACert  = "/etc/rhsm/ca/redhat-uep.pem"
	rhuiRepoFileGlob   = "/etc/yum.repos.d/rhui*.repo"
)

// loadFallbackSecrets looks for an entitlement key and certificate pair
// outside of any repo file.
func loadFallbackSecrets(keyGlob string) (*Secrets, error) {
	keys, err := filepath.Glob(keyGlob)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		// the key and the certificate share a prefix
		cert := strings.TrimSuffix(key, "-key.pem") + ".pem"
		if _, err := os.Stat(cert); err == nil {
			logrus.Debugf("rhsm: using entitlement fallback key %s", key)
			return &Secrets{
				SSLCACert:     entitlementCACert,
				SSLClientKey:  key,
				SSLClientCert: cert,
			}, nil
		}
	}
	return nil, fmt.Errorf("no matching rhsm key and cert")
}

// LoadSystemSubscriptions loads all the available subscriptions of the
// host: the sections of redhat.repo plus the entitlement key fallback.
// It fails when neither source yields anything.
func LoadSystemSubscriptions() (*Subscriptions, error) {
	return loadSubscriptions(systemRepoFile, entitlementKeyGlob)
}

func loadSubscriptions(repoFile, keyGlob string) (*Subscriptions, error) {
	var available []subscription
	content, err := os.ReadFile(repoFile)
	if err == nil {
		available, err = parseRepoFile(content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse the file with subscriptions: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to open the file with subscriptions: %w", err)
	}

	fallback, _ := loadFallbackSecrets(keyGlob)

	if len(available) == 0 && fallback == nil {
		return nil, fmt.Errorf("No RHSM secrets found on this host.")
	}

	return &Subscriptions{available: available, fallback: fallback}, nil
}

// ParseSubscriptions builds Subscriptions straight from repo file
// content, for callers that already hold the file.
func ParseSubscriptions(content []byte) (*Subscriptions, error) {
	available, err := parseRepoFile(content)
	if err != nil {
		return nil, err
	}
	return &Subscriptions{available: available}, nil
}

// LoadRHUISubscriptions loads the sections of all rhui*.repo files of
// the host. There is no entitlement fallback for RHUI.
func LoadRHUISubscriptions() (*Subscriptions, error) {
	return loadRHUISubscriptions(rhuiRepoFileGlob)
}

func loadRHUISubscriptions(repoGlob string) (*Subscriptions, error) {
	files, err := filepath.Glob(repoGlob)
	if err != nil {
		return nil, err
	}

	var available []subscription
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open the RHUI repository file %s: %w", file, err)
		}
		subs, err := parseRepoFile(content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse the RHUI repository file %s: %w", file, err)
		}
		available = append(available, subs...)
	}

	if len(available) == 0 {
		return nil, fmt.Errorf("No RHUI repository files found on this host.")
	}

	return &Subscriptions{available: available}, nil
}

// processBaseURL creates a regex from a repo file baseurl: the URL is
// escaped, then the yum template variables are replaced with a
// non-slash wildcard so any concrete expansion of the baseurl matches.
func processBaseURL(baseurl string) *regexp.Regexp {
	escaped := regexp.QuoteMeta(baseurl)
	for _, variable := range []string{`\$releasever`, `\$arch`, `\$basearch`, `\$uuid`} {
		escaped = strings.ReplaceAll(escaped, variable, "[^/]*")
	}
	return regexp.MustCompile("^" + escaped)
}

func parseRepoFile(content []byte) ([]subscription, error) {
	cfg, err := ini.Load(content)
	if err != nil {
		return nil, err
	}

	subscriptions := make([]subscription, 0)

	for _, section := range cfg.Sections() {
		id := section.Name()
		key, err := section.GetKey("baseurl")
		if err != nil {
			continue
		}
		baseurl := key.String()
		key, err = section.GetKey("sslcacert")
		if err != nil {
			continue
		}
		sslcacert := key.String()
		key, err = section.GetKey("sslclientkey")
		if err != nil {
			continue
		}
		sslclientkey := key.String()
		key, err = section.GetKey("sslclientcert")
		if err != nil {
			continue
		}
		sslclientcert := key.String()
		logrus.Debugf("rhsm: loaded subscription section %s (%s)", id, baseurl)
		subscriptions = append(subscriptions, subscription{
			id:            id,
			matchURL:      processBaseURL(baseurl),
			sslCACert:     sslcacert,
			sslClientKey:  sslclientkey,
			sslClientCert: sslclientcert,
		})
	}

	return subscriptions, nil
}

// GetSecrets returns the secrets of the first subscription whose
// baseurl pattern matches one of the given urls, trying the urls in
// order. When none match it falls back to the entitlement secrets.
func (s *Subscriptions) GetSecrets(urls []string) (*Secrets, error) {
	for _, url := range urls {
		for _, subs := range s.available {
			if subs.matchURL.MatchString(url) {
				return &Secrets{
					SSLCACert:     subs.sslCACert,
					SSLClientKey:  subs.sslClientKey,
					SSLClientCert: subs.sslClientCert,
				}, nil
			}
		}
	}
	if s.fallback != nil {
		return s.fallback, nil
	}
	return nil, fmt.Errorf("There are no RHSM secret associated with %s", strings.Join(urls, ", "))
}

// First returns the secrets of the first loaded subscription. It is
// used as the RHUI fallback when no baseurl matches.
func (s *Subscriptions) First() (*Secrets, bool) {
	if len(s.available) == 0 {
		return nil, false
	}
	first := s.available[0]
	return &Secrets{
		SSLCACert:     first.sslCACert,
		SSLClientKey:  first.sslClientKey,
		SSLClientCert: first.sslClientCert,
	}, true
}
