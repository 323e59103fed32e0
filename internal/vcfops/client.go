package vcfops

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
)

// ErrAuthExpired indicates the suite API rejected the bearer token (HTTP
// 401) and the one allowed refresh-and-retry did not recover the call.
var ErrAuthExpired = errors.New("suite API authorization expired")

// RemoteError is a non-401 HTTP failure from the suite API. These are never
// retried; the caller decides what to do.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("suite API returned status %d: %s", e.StatusCode, e.Body)
}

// CredentialSource supplies the bearer token and refreshes it on demand.
type CredentialSource interface {
	GetToken() (string, error)
	Refresh() (string, error)
}

// Client talks to the VCF Operations suite API. No timeout is configured on
// resource calls: an unresponsive instance stalls the batch, which is a
// known limitation of the original system and kept as-is.
type Client struct {
	baseURL    string
	creds      CredentialSource
	token      string
	httpClient *http.Client
}

// NewClient creates a suite API client rooted at baseURL (scheme + host).
// The bearer token is captured once at construction and refreshed only when
// the API reports it expired.
func NewClient(baseURL string, creds CredentialSource, insecureTLS bool) (*Client, error) {
	token, err := creds.GetToken()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize suite API client: %w", err)
	}

	if insecureTLS {
		log.Warn("⚠️  TLS verification disabled for suite API requests; use proper certificates in production")
	}

	return &Client{
		baseURL: baseURL,
		creds:   creds,
		token:   token,
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: insecureTLS},
			},
		},
	}, nil
}

// FetchAll returns every VirtualMachine resource known to the instance. A
// 401 triggers exactly one credential refresh and re-issue; a second 401
// propagates as fatal.
func (c *Client) FetchAll(ctx context.Context) ([]VMResource, error) {
	return c.fetchAll(ctx, false)
}

func (c *Client) fetchAll(ctx context.Context, retried bool) ([]VMResource, error) {
	log.Debug("🔍 Fetching all VirtualMachine resources")

	vms, err := c.listResources(ctx, "")
	if err != nil {
		if isAuthExpired(err) && !retried {
			log.Warn("Token expired, refreshing and retrying fetch")
			if rerr := c.refreshToken(); rerr != nil {
				return nil, rerr
			}
			return c.fetchAll(ctx, true)
		}
		return nil, err
	}

	log.WithField("count", len(vms)).Info("✅ Fetched VirtualMachine inventory")
	return vms, nil
}

// FetchNamed looks up each name with its own request and concatenates the
// results in input order. Only the first 401 across the whole call triggers
// a credential refresh; that name is retried once. Later failures, and
// names with zero matches, are logged and skipped.
func (c *Client) FetchNamed(ctx context.Context, names []string) ([]VMResource, error) {
	var all []VMResource
	retried := false

	for _, name := range names {
		vms, err := c.listResources(ctx, name)
		if err != nil {
			if isAuthExpired(err) && !retried {
				log.Warn("Token expired, refreshing and retrying lookup")
				retried = true
				if rerr := c.refreshToken(); rerr != nil {
					// A credential that cannot be refreshed dooms every
					// remaining name; abort the whole lookup.
					return nil, rerr
				}
				vms, err = c.listResources(ctx, name)
				if err != nil {
					log.WithError(err).WithField("vm_name", name).Error("Failed to fetch VM after token refresh")
					continue
				}
			} else {
				log.WithError(err).WithField("vm_name", name).Error("Failed to fetch VM")
				continue
			}
		}

		if len(vms) == 0 {
			log.WithField("vm_name", name).Warn("VM not found")
			continue
		}

		log.WithField("vm_name", name).Info("Found VM")
		all = append(all, vms...)
	}

	return all, nil
}

// ApplyUpdate writes the minimal update payload for one VM. Any non-2xx
// response is an error; there is no retry at this level.
func (c *Client) ApplyUpdate(ctx context.Context, vmID, name string, identifiers []ResourceIdentifier) error {
	payload := updateRequest{
		ResourceKey: ResourceKey{
			Name:                name,
			AdapterKindKey:      AdapterKindVMware,
			ResourceKindKey:     ResourceKindVirtualMach,
			ResourceIdentifiers: identifiers,
		},
		Identifier: vmID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal update payload: %w", err)
	}

	reqURL := fmt.Sprintf("%s/suite-api/api/resources?_no_links=true", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "PUT", reqURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create update request: %w", err)
	}
	c.setHeaders(req)

	log.WithFields(log.Fields{
		"vm_id":   vmID,
		"vm_name": name,
	}).Debug("Sending resource update request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call resource update API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp)
	}

	return nil
}

func (c *Client) listResources(ctx context.Context, name string) ([]VMResource, error) {
	params := url.Values{}
	params.Set("resourceKind", ResourceKindVirtualMach)
	params.Set("adapterKind", AdapterKindVMware)
	if name != "" {
		params.Set("name", name)
	}

	reqURL := fmt.Sprintf("%s/suite-api/api/resources?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource list request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call resource list API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var list resourceListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode resource list response: %w", err)
	}

	return list.ResourceList, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "OpsToken "+c.token)
}

func (c *Client) refreshToken() error {
	token, err := c.creds.Refresh()
	if err != nil {
		return fmt.Errorf("failed to refresh bearer token: %w", err)
	}
	c.token = token
	return nil
}

func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrAuthExpired, string(body))
	}
	return &RemoteError{StatusCode: resp.StatusCode, Body: string(body)}
}

func isAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}
