// Package prom talks directly to a running Prometheus server's HTTP API.
// The reconcile loop itself never imports this package (it reads usage
// through metrics-server, see internal/metricsreader); this client backs
// the snapshot-upload sidecar's trigger call to the admin API.
package prom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
)

type snapshotResponse struct {
	Status string `json:"status"`
	Data   struct {
		Name string `json:"name"`
	} `json:"data"`
}

// RequestTSDBSnapshot calls POST {promURL}/api/v1/admin/tsdb/snapshot and
// returns the snapshot's directory name as reported by Prometheus.
func RequestTSDBSnapshot(ctx context.Context, client *http.Client, promURL string) (string, error) {
	u, err := url.Parse(promURL)
	if err != nil {
		return "", fmt.Errorf("%w: parsing prometheus url %q: %v", autoscalererrors.ErrConfigError, promURL, err)
	}
	u.Path = "/api/v1/admin/tsdb/snapshot"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: building snapshot request: %v", autoscalererrors.ErrAPIError, err)
	}

	r, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: requesting tsdb snapshot: %v", autoscalererrors.ErrAPIError, err)
	}
	defer r.Body.Close()

	var out snapshotResponse
	if err := json.NewDecoder(r.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding snapshot response: %v", autoscalererrors.ErrAPIError, err)
	}
	if out.Status != "success" || out.Data.Name == "" {
		return "", fmt.Errorf("%w: prometheus reported status %q for snapshot request", autoscalererrors.ErrAPIError, out.Status)
	}
	return out.Data.Name, nil
}
