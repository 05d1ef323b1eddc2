package snapshotupload

import "path/filepath"

// SnapshotDir returns the on-disk path of a named TSDB snapshot under
// Prometheus's data directory, matching Prometheus's own naming: the
// admin API writes each snapshot under "<prometheusDir>/snapshots/<name>".
func SnapshotDir(prometheusDir, name string) string {
	return filepath.Join(prometheusDir, "snapshots", name)
}
