package snapshotupload

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
)

// Cleanup removes the snapshots and wal directories under prometheusDir so
// a snapshot-upload run doesn't leave the uploaded snapshot (or a stale
// WAL) occupying the volume.
func Cleanup(prometheusDir string) error {
	for _, name := range []string{"snapshots", "wal"} {
		dir := filepath.Join(prometheusDir, name)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("%w: removing %s: %v", autoscalererrors.ErrAPIError, dir, err)
		}
	}
	return nil
}
