package image

// HealthConfig mirrors the OCI/Docker container healthcheck declaration
// carried inside a container config, per
// moby_distribution/spec/image_json.py's HealthConfig.
type HealthConfig struct {
	Test        []string `json:"Test"`
	Interval    int64    `json:"Interval"`
	Timeout     int64    `json:"Timeout"`
	StartPeriod int64    `json:"StartPeriod"`
	Retries     int      `json:"Retries"`
}

// ContainerConfig is the "config" object inside an image config JSON
// document, per moby_distribution/spec/image_json.py's ContainerConfig.
type ContainerConfig struct {
	User         string            `json:"User"`
	Memory       *int64            `json:"Memory,omitempty"`
	MemorySwap   *int64            `json:"MemorySwap,omitempty"`
	CPUShares    *int64            `json:"CpuShares,omitempty"`
	ExposedPorts map[string]struct{} `json:"ExposedPorts,omitempty"`
	Env          []string          `json:"Env,omitempty"`
	Entrypoint   []string          `json:"Entrypoint,omitempty"`
	Cmd          []string          `json:"Cmd,omitempty"`
	Volumes      map[string]struct{} `json:"Volumes,omitempty"`
	WorkingDir   string            `json:"WorkingDir,omitempty"`
	Labels       map[string]string `json:"Labels,omitempty"`
	StopSignal   string            `json:"StopSignal,omitempty"`
	Healthcheck  *HealthConfig     `json:"Healthcheck,omitempty"`
}

// RootFS carries the ordered uncompressed-layer digests ("diff ids") that
// reconstruct the image filesystem, per spec.md §3's ImageJSON.
type RootFS struct {
	Type    string   `json:"type"`
	DiffIDs []string `json:"diff_ids"`
}

// History is one entry of the image's build history.
type History struct {
	Created    string `json:"created,omitempty"`
	Author     string `json:"author,omitempty"`
	CreatedBy  string `json:"created_by,omitempty"`
	Comment    string `json:"comment,omitempty"`
	EmptyLayer bool   `json:"empty_layer,omitempty"`
}

// JSON is the image configuration document referenced by a Schema2
// manifest's "config" descriptor, per
// moby_distribution/spec/image_json.py's ImageJSON.
type JSON struct {
	Created      string          `json:"created"`
	Author       string          `json:"author,omitempty"`
	Architecture string          `json:"architecture"`
	OS           string          `json:"os"`
	Variant      string          `json:"variant,omitempty"`
	Config       ContainerConfig `json:"config"`
	RootFS       RootFS          `json:"rootfs"`
	History      []History       `json:"history,omitempty"`
}
