// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package assets caches downloaded images on disk, keyed by (type, id).
//
// The cache is deliberately lock-free: concurrent downloads targeting the
// same path are benign because whichever write finishes last wins and
// both callers get a valid path. Image files need no stronger guarantee.
package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xbltracker/xbltracker/internal/logging"
	"github.com/xbltracker/xbltracker/internal/metrics"
)

// filePrefix namespaces tracker files inside the shared temp directory.
const filePrefix = "obs_achievement_tracker_"

// Downloader fetches raw bytes; satisfied by *xhttp.Client.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Cache deduplicates image downloads.
type Cache struct {
	dir    string
	client Downloader
}

// New creates a Cache storing files under dir; an empty dir selects the
// system temp directory.
func New(dir string, client Downloader) *Cache {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Cache{dir: dir, client: client}
}

// Path returns the on-disk location for an asset, whether or not it
// exists yet.
func (c *Cache) Path(assetType, id string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s%s_%s.png", filePrefix, assetType, id))
}

// Download returns the local path for the asset, fetching it from url on
// a cache miss. A hit never touches the network.
func (c *Cache) Download(ctx context.Context, url, assetType, id string) (string, error) {
	path := c.Path(assetType, id)

	if _, err := os.Stat(path); err == nil {
		metrics.CacheHits.Inc()
		return path, nil
	}
	metrics.CacheMisses.Inc()

	data, err := c.client.Download(ctx, url)
	if err != nil {
		metrics.CacheDownloadErrors.Inc()
		return "", fmt.Errorf("asset %s/%s: %w", assetType, id, err)
	}

	// Plain write, no temp-rename: last writer wins and that is fine
	// for image files.
	if err := os.WriteFile(path, data, 0o644); err != nil {
		metrics.CacheDownloadErrors.Inc()
		return "", fmt.Errorf("asset %s/%s: %w", assetType, id, err)
	}

	logging.Debug().Str("type", assetType).Str("id", id).Str("path", path).Msg("asset cached")
	return path, nil
}
