// Command snapshotupload is the one-shot sidecar entrypoint: it triggers
// a TSDB snapshot on the local Prometheus, uploads the resulting blocks
// to S3 with Thanos-compatible metadata, and cleans up the snapshot and
// WAL directories. It is invoked as its own process (a cron job or a
// manually-triggered sidecar exec), never by the autoscaler manager.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/zbialik/prometheus-autoscaler/internal/prom"
	"github.com/zbialik/prometheus-autoscaler/internal/snapshotupload"
)

const (
	defaultPrometheusURL   = "http://localhost:9090"
	defaultPrometheusDir   = "/prometheus"
	defaultConfigOutPath   = "/etc/prometheus/config_out/prometheus.env.yaml"
	defaultSnapshotTimeout = 60 * time.Second
)

func main() {
	ctrl.SetLogger(zap.New(zap.UseDevMode(true)))
	log := ctrl.Log.WithName("snapshotupload")

	bucket := os.Getenv("OBJSTORE_BUCKET")
	if bucket == "" {
		fmt.Fprintln(os.Stderr, "OBJSTORE_BUCKET must be set")
		os.Exit(1)
	}

	promURL := getenvDefault("PROMETHEUS_URL", defaultPrometheusURL)
	prometheusDir := getenvDefault("PROMETHEUS_DIRECTORY", defaultPrometheusDir)
	configOutPath := getenvDefault("PROMETHEUS_CONFIG_OUT", defaultConfigOutPath)

	ctx, cancel := context.WithTimeout(context.Background(), defaultSnapshotTimeout)
	defer cancel()

	httpClient := &http.Client{Timeout: defaultSnapshotTimeout}
	name, err := prom.RequestTSDBSnapshot(ctx, httpClient, promURL)
	if err != nil {
		log.Error(err, "requesting tsdb snapshot")
		os.Exit(1)
	}
	snapshotDir := snapshotupload.SnapshotDir(prometheusDir, name)
	log.Info("snapshot taken", "snapshotDir", snapshotDir)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error(err, "loading aws config")
		os.Exit(1)
	}
	s3Client := s3.NewFromConfig(awsCfg)

	uploadCfg := snapshotupload.Config{Bucket: bucket, ConfigOutPath: configOutPath}
	if err := snapshotupload.UploadSnapshot(ctx, s3Client, uploadCfg, snapshotDir, log); err != nil {
		log.Error(err, "uploading snapshot")
		os.Exit(1)
	}

	if err := snapshotupload.Cleanup(prometheusDir); err != nil {
		log.Error(err, "cleaning up prometheus directory")
		os.Exit(1)
	}

	log.Info("snapshot upload complete", "bucket", bucket, "snapshotDir", snapshotDir)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
