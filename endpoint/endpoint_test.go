package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostPortDefaultsTo443(t *testing.T) {
	e := New("registry.example.com")
	hp, path, err := e.HostPort()
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com:443", hp)
	assert.Equal(t, "", path)
}

func TestHostPortHonorsExplicitPort(t *testing.T) {
	e := New("registry.example.com:5000")
	hp, _, err := e.HostPort()
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com:5000", hp)
}

func TestProbeUnreachableHostIsInsecure(t *testing.T) {
	// Nothing listens on this documentation-range address; the dial itself
	// should fail outright (connection refused / timeout), not as a cert
	// failure, giving (false, false).
	https, valid := Probe("198.51.100.1:1")
	assert.False(t, https)
	assert.False(t, valid)
}

func TestURLBuilderPaths(t *testing.T) {
	b := NewURLBuilder("https://registry.example.com")
	assert.Equal(t, "https://registry.example.com/v2/", b.Version())
	assert.Equal(t, "https://registry.example.com/v2/lib/app/blobs/sha256:abc", b.Blob("lib/app", "sha256:abc"))
	assert.Equal(t, "https://registry.example.com/v2/lib/app/blobs/uploads/", b.BlobUploads("lib/app"))
	assert.Equal(t, "https://registry.example.com/v2/lib/app/manifests/latest", b.Manifest("lib/app", "latest"))
	assert.Equal(t, "https://registry.example.com/v2/lib/app/tags/list", b.Tags("lib/app"))
}
