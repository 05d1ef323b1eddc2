// Package snapshotupload triggers a TSDB snapshot over the admin HTTP API,
// stamps each resulting block with Thanos-compatible metadata, and pushes
// the block to object storage. It never touches spec.shards and never runs
// inside the Reconciler; it's invoked as its own process
// (cmd/snapshotupload), independent of the shard-scaling control loop.
package snapshotupload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-logr/logr"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
)

// S3Uploader is the subset of *s3.Client this package needs, so tests can
// substitute a fake without standing up a real bucket.
type S3Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds the inputs needed to enrich and upload one TSDB snapshot.
type Config struct {
	Bucket        string
	ConfigOutPath string // path to Prometheus's rendered config_out/prometheus.env.yaml
}

// UploadSnapshot enriches every block under snapshotDir with Thanos
// metadata and uploads its index, meta.json, and chunk files to bucket,
// one block at a time.
func UploadSnapshot(ctx context.Context, client S3Uploader, cfg Config, snapshotDir string, log logr.Logger) error {
	labels, err := externalLabels(cfg.ConfigOutPath)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(snapshotDir)
	if err != nil {
		return fmt.Errorf("%w: reading snapshot dir %s: %v", autoscalererrors.ErrAPIError, snapshotDir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		blockDir := filepath.Join(snapshotDir, entry.Name())
		log.Info("uploading block", "blockDir", blockDir)

		chunks, err := enrichBlockMeta(blockDir, labels)
		if err != nil {
			return err
		}
		if err := uploadBlock(ctx, client, cfg.Bucket, snapshotDir, blockDir, chunks); err != nil {
			return err
		}
	}
	return nil
}

func uploadBlock(ctx context.Context, client S3Uploader, bucket, snapshotDir, blockDir string, chunks []string) error {
	files := []string{
		filepath.Join(blockDir, "index"),
		filepath.Join(blockDir, "meta.json"),
	}
	for _, chunk := range chunks {
		files = append(files, filepath.Join(blockDir, "chunks", chunk))
	}

	for _, file := range files {
		if err := uploadFile(ctx, client, bucket, snapshotDir, file); err != nil {
			return err
		}
	}
	return nil
}

func uploadFile(ctx context.Context, client S3Uploader, bucket, snapshotDir, file string) error {
	rel, err := filepath.Rel(snapshotDir, file)
	if err != nil {
		return fmt.Errorf("%w: computing object key for %s: %v", autoscalererrors.ErrAPIError, file, err)
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", autoscalererrors.ErrAPIError, file, err)
	}
	defer f.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &rel,
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("%w: uploading %s to s3://%s/%s: %v", autoscalererrors.ErrAPIError, file, bucket, rel, err)
	}
	return nil
}
