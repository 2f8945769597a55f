package distclient

import "github.com/docker/distribution/reference"

// Ref identifies a repository plus an optional tag or digest, parsed from a
// single string such as "library/nginx:latest" or
// "library/nginx@sha256:abc...". It mirrors eriksw-regclient's Ref and the
// original's looser (repo, reference) pair used throughout
// moby_distribution/registry/resources.
type Ref struct {
	Registry   string
	Repository string
	Tag        string
	Digest     string
}

// ParseRef parses s using the same normalized-name rules as the Docker CLI
// (github.com/docker/distribution/reference), matching
// eriksw-regclient.NewRef.
func ParseRef(s string) (Ref, error) {
	parsed, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return Ref{}, err
	}

	var r Ref
	r.Registry = reference.Domain(parsed)
	r.Repository = reference.Path(parsed)

	if canonical, ok := parsed.(reference.Canonical); ok {
		r.Digest = canonical.Digest().String()
	}
	if tagged, ok := parsed.(reference.Tagged); ok {
		r.Tag = tagged.Tag()
	}
	return r, nil
}

// CommonName renders r back into a single parsable string, preferring a tag
// and appending a digest when both are present.
func (r Ref) CommonName() string {
	if r.Repository == "" {
		return ""
	}
	cn := r.Repository
	if r.Registry != "" {
		cn = r.Registry + "/" + r.Repository
	}
	if r.Tag != "" {
		cn = cn + ":" + r.Tag
	}
	if r.Digest != "" {
		cn = cn + "@" + r.Digest
	}
	return cn
}

// Reference resolves the manifest-lookup reference: a digest takes priority
// over a tag, and "latest" is the fallback, per the Docker Registry API's
// own tag-or-digest addressing.
func (r Ref) Reference() string {
	if r.Digest != "" {
		return r.Digest
	}
	if r.Tag != "" {
		return r.Tag
	}
	return "latest"
}
