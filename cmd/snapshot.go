package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/JakeFAU/grant-discovery/internal/app"
	"github.com/JakeFAU/grant-discovery/internal/normalize"
)

// readSnapshot loads a snapshot from path, or from the blob store when path is empty.
func readSnapshot(ctx context.Context, a *app.App, path string) ([]normalize.SnapshotRecord, error) {
	var r io.ReadCloser
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open snapshot: %w", err)
		}
		r = f
	} else {
		rc, err := a.Blobs.GetObject(ctx, a.Controller.SnapshotPath())
		if err != nil {
			return nil, fmt.Errorf("read snapshot %s: %w", a.Controller.SnapshotPath(), err)
		}
		r = rc
	}
	defer func() {
		_ = r.Close()
	}()
	return normalize.ReadSnapshot(r)
}

// writeSnapshot saves records to path, or to blobPath in the blob store when
// path is empty. It returns where the snapshot was written.
func writeSnapshot(ctx context.Context, a *app.App, path, blobPath string, records []normalize.SnapshotRecord) (string, error) {
	var buf bytes.Buffer
	if err := normalize.WriteSnapshot(&buf, records); err != nil {
		return "", err
	}
	if path == "" {
		uri, err := a.Blobs.PutObject(ctx, blobPath, "application/json", &buf)
		if err != nil {
			return "", fmt.Errorf("write snapshot: %w", err)
		}
		return uri, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}
