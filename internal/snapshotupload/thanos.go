package snapshotupload

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
)

// promConfigOut mirrors the subset of Prometheus's generated
// config_out/prometheus.env.yaml this package reads: the external labels
// the operator stamped onto the shard (prom_shard among them).
type promConfigOut struct {
	Global struct {
		ExternalLabels map[string]string `yaml:"external_labels"`
	} `yaml:"global"`
}

// externalLabels reads the external_labels block from the Prometheus
// operator's rendered config, the same file the sidecar container mounts
// read-only alongside the TSDB.
func externalLabels(configOutPath string) (map[string]string, error) {
	raw, err := os.ReadFile(configOutPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", autoscalererrors.ErrAPIError, configOutPath, err)
	}

	var cfg promConfigOut
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", autoscalererrors.ErrConfigError, configOutPath, err)
	}
	return cfg.Global.ExternalLabels, nil
}

// thanosFile is one entry of a Thanos block's files list.
type thanosFile struct {
	RelPath   string `json:"rel_path"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

type thanosDownsample struct {
	Resolution int64 `json:"resolution"`
}

// thanosMeta is the "thanos" field Thanos expects injected into a
// Prometheus TSDB block's meta.json before it's treated as a bucket
// object, manually snapshotted rather than produced by the sidecar.
type thanosMeta struct {
	Labels       map[string]string `json:"labels"`
	Downsample   thanosDownsample  `json:"downsample"`
	Source       string            `json:"source"`
	SegmentFiles []string          `json:"segment_files"`
	Files        []thanosFile      `json:"files"`
}

// buildThanosMeta constructs the thanos metadata block for a manually
// uploaded snapshot, tagging its prom_shard label so it's distinguishable
// in the bucket from blocks the sidecar uploads itself.
func buildThanosMeta(labels map[string]string) thanosMeta {
	tagged := make(map[string]string, len(labels))
	for k, v := range labels {
		tagged[k] = v
	}
	if shard, ok := tagged["prom_shard"]; ok {
		tagged["prom_shard"] = shard + "-manual-snapshot-upload"
	}

	return thanosMeta{
		Labels: tagged,
		Source: "sidecar",
		Files: []thanosFile{
			{RelPath: "meta.json"},
		},
	}
}
