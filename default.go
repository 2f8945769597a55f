package distclient

import (
	"sync"

	"github.com/shabbywu/distribution-go/endpoint"
)

// defaultClient mirrors moby_distribution.registry.client.DefaultRegistryClient:
// a process-wide client lazily built from the official Docker Hub endpoint
// on first use, replaceable via SetDefaultClient.
var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// DefaultClient returns the process-wide default Client, building it from
// endpoint.OfficialEndpoint on first call.
func DefaultClient() (*Client, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient != nil {
		return defaultClient, nil
	}
	c, err := NewClientFromEndpoint(endpoint.OfficialEndpoint, "", "")
	if err != nil {
		return nil, err
	}
	defaultClient = c
	return defaultClient, nil
}

// SetDefaultClient replaces the process-wide default Client, mirroring
// moby_distribution.registry.client.set_default_client.
func SetDefaultClient(c *Client) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultClient = c
}
