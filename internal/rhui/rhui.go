// Package rhui detects the cloud provider a host runs on and fetches
// the identity headers RHUI content servers require.
//
// AWS and GCP RHUI mirrors expect X-RHUI-ID and X-RHUI-SIGNATURE HTTP
// headers on every request. Azure RHUI authenticates with client
// certificates and IP ranges only, so it needs no extra headers.
package rhui

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

// CloudProvider identifies the cloud a host runs on.
type CloudProvider string

const (
	ProviderAWS   CloudProvider = "aws"
	ProviderGCP   CloudProvider = "gcp"
	ProviderAzure CloudProvider = "azure"
	ProviderNone  CloudProvider = ""
)

const (
	imdsTimeout = 5 * time.Second

	azureIMDSURL = "http://169.254.169.254/metadata/instance?api-version=2021-02-01"

	gcpIdentityPath = "instance/service-accounts/default/identity?audience=rhui&format=full"
	gcpTokenPath    = "instance/service-accounts/default/token"
)

// IdentityClient probes instance metadata services and builds RHUI
// identity headers. The zero value uses the real metadata endpoints.
type IdentityClient struct {
	// AWSEndpoint overrides the IMDS endpoint, for tests.
	AWSEndpoint string

	// AzureEndpoint overrides the Azure IMDS URL, for tests.
	AzureEndpoint string

	// GCP overrides the metadata client, for tests. The default client
	// honors the GCE_METADATA_HOST environment variable.
	GCP *metadata.Client

	// HTTPClient is used for the Azure probe.
	HTTPClient *http.Client
}

func (c *IdentityClient) awsClient() *imds.Client {
	return imds.New(imds.Options{}, func(o *imds.Options) {
		if c.AWSEndpoint != "" {
			o.Endpoint = c.AWSEndpoint
		}
	})
}

func (c *IdentityClient) gcpClient() *metadata.Client {
	if c.GCP != nil {
		return c.GCP
	}
	return metadata.NewClient(&http.Client{Timeout: imdsTimeout})
}

func (c *IdentityClient) azureURL() string {
	if c.AzureEndpoint != "" {
		return c.AzureEndpoint
	}
	return azureIMDSURL
}

func (c *IdentityClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: imdsTimeout}
}

// DetectCloudProvider probes the AWS, GCP, and Azure metadata services
// in turn and returns the first that answers, or ProviderNone when no
// probe succeeds.
func (c *IdentityClient) DetectCloudProvider(ctx context.Context) CloudProvider {
	if c.probeAWS(ctx) {
		return ProviderAWS
	}
	if c.probeGCP(ctx) {
		return ProviderGCP
	}
	if c.probeAzure(ctx) {
		return ProviderAzure
	}
	return ProviderNone
}

func (c *IdentityClient) probeAWS(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, imdsTimeout)
	defer cancel()
	_, err := c.awsClient().GetDynamicData(ctx, &imds.GetDynamicDataInput{
		Path: "instance-identity/document",
	})
	return err == nil
}

func (c *IdentityClient) probeGCP(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, imdsTimeout)
	defer cancel()
	_, err := c.gcpClient().GetWithContext(ctx, "")
	return err == nil
}

func (c *IdentityClient) probeAzure(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, imdsTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.azureURL(), nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata", "true")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// IdentityHeaders returns the RHUI identity headers for the given
// provider as "Name: value" strings. Azure and undetected providers get
// no headers.
func (c *IdentityClient) IdentityHeaders(ctx context.Context, provider CloudProvider) ([]string, error) {
	switch provider {
	case ProviderAWS:
		return c.awsIdentityHeaders(ctx)
	case ProviderGCP:
		return c.gcpIdentityHeaders(ctx)
	default:
		return nil, nil
	}
}

func (c *IdentityClient) awsIdentityHeaders(ctx context.Context) ([]string, error) {
	client := c.awsClient()
	doc, err := awsDynamicData(ctx, client, "instance-identity/document")
	if err != nil {
		return nil, fmt.Errorf("fetching instance identity document: %w", err)
	}
	sig, err := awsDynamicData(ctx, client, "instance-identity/signature")
	if err != nil {
		return nil, fmt.Errorf("fetching instance identity signature: %w", err)
	}

	// The signature from IMDS is already base64 text, possibly wrapped
	// over several lines. RHUI expects the raw signature bytes
	// re-encoded as a single clean base64 line.
	rawSig, err := base64.StdEncoding.DecodeString(stripWhitespace(string(sig)))
	if err != nil {
		return nil, fmt.Errorf("decoding instance identity signature: %w", err)
	}

	return []string{
		fmt.Sprintf("X-RHUI-ID: %s", base64.StdEncoding.EncodeToString(doc)),
		fmt.Sprintf("X-RHUI-SIGNATURE: %s", base64.StdEncoding.EncodeToString(rawSig)),
	}, nil
}

func awsDynamicData(ctx context.Context, client *imds.Client, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, imdsTimeout)
	defer cancel()
	out, err := client.GetDynamicData(ctx, &imds.GetDynamicDataInput{Path: path})
	if err != nil {
		return nil, err
	}
	defer out.Content.Close()
	return io.ReadAll(out.Content)
}

func (c *IdentityClient) gcpIdentityHeaders(ctx context.Context) ([]string, error) {
	client := c.gcpClient()

	ctx, cancel := context.WithTimeout(ctx, 2*imdsTimeout)
	defer cancel()

	doc, err := client.GetWithContext(ctx, gcpIdentityPath)
	if err != nil {
		return nil, fmt.Errorf("fetching instance identity token: %w", err)
	}
	token, err := client.GetWithContext(ctx, gcpTokenPath)
	if err != nil {
		return nil, fmt.Errorf("fetching service account token: %w", err)
	}

	return []string{
		fmt.Sprintf("X-RHUI-ID: %s", base64.StdEncoding.EncodeToString([]byte(doc))),
		fmt.Sprintf("X-RHUI-SIGNATURE: %s", base64.StdEncoding.EncodeToString([]byte(token))),
	}, nil
}

func stripWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
