package main

import (
	distribution "github.com/shabbywu/distribution-go"
	"github.com/shabbywu/distribution-go/endpoint"
)

// credsFor indexes Config.Creds by registry host for quick lookup.
func credsFor(cfg *Config) map[string]ConfigHost {
	m := make(map[string]ConfigHost, len(cfg.Creds))
	for _, c := range cfg.Creds {
		m[c.Registry] = c
	}
	return m
}

// clientFor builds (and TLS-probes) a Client for registry host, applying
// any matching credentials from creds. "docker.io", the normalized form
// reference.Domain returns for unqualified names, is mapped to
// endpoint.OfficialEndpoint ("registry.hub.docker.com"), in the spirit of
// eriksw-regclient/regclient/regclient.go's hardcoded "docker.io" host
// entry (which points at "registry-1.docker.io" instead).
func clientFor(host string, creds map[string]ConfigHost) (*distribution.Client, error) {
	cred := creds[host]
	ep := endpoint.New(host)
	if host == "docker.io" {
		ep = endpoint.OfficialEndpoint
	}
	return distribution.NewClientFromEndpoint(ep, cred.User, cred.Pass)
}
