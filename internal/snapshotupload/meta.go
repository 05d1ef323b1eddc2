package snapshotupload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
)

// enrichBlockMeta reads blockDir/meta.json, injects the thanos metadata
// block built from labels, and writes the result back in place. It
// returns the list of chunk file names the block holds, needed by the
// caller to know what to upload.
func enrichBlockMeta(blockDir string, labels map[string]string) ([]string, error) {
	metaPath := filepath.Join(blockDir, "meta.json")
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", autoscalererrors.ErrAPIError, metaPath, err)
	}

	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", autoscalererrors.ErrAPIError, metaPath, err)
	}

	thanos := buildThanosMeta(labels)

	indexPath := filepath.Join(blockDir, "index")
	indexInfo, err := os.Stat(indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: statting %s: %v", autoscalererrors.ErrAPIError, indexPath, err)
	}
	thanos.Files = append(thanos.Files, thanosFile{RelPath: "index", SizeBytes: indexInfo.Size()})

	chunksDir := filepath.Join(blockDir, "chunks")
	chunkEntries, err := os.ReadDir(chunksDir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", autoscalererrors.ErrAPIError, chunksDir, err)
	}

	chunks := make([]string, 0, len(chunkEntries))
	for _, entry := range chunkEntries {
		chunkPath := filepath.Join(chunksDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("%w: statting %s: %v", autoscalererrors.ErrAPIError, chunkPath, err)
		}
		chunks = append(chunks, entry.Name())
		thanos.SegmentFiles = append(thanos.SegmentFiles, entry.Name())
		thanos.Files = append(thanos.Files, thanosFile{
			RelPath:   filepath.Join("chunks", entry.Name()),
			SizeBytes: info.Size(),
		})
	}

	meta["thanos"] = thanos

	out, err := json.MarshalIndent(meta, "", "   ")
	if err != nil {
		return nil, fmt.Errorf("%w: marshalling enriched %s: %v", autoscalererrors.ErrAPIError, metaPath, err)
	}
	if err := os.WriteFile(metaPath, out, 0o644); err != nil {
		return nil, fmt.Errorf("%w: writing enriched %s: %v", autoscalererrors.ErrAPIError, metaPath, err)
	}

	return chunks, nil
}
