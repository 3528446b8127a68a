package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// DownloadPrefix copies every object under prefix whose extension is in exts
// into destDir and returns the local paths, sorted. An override names a single
// object instead, relative to prefix or as a full key.
func DownloadPrefix(ctx context.Context, client ObjectStorage, prefix, override, destDir string, exts ...string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure download dir %s: %w", destDir, err)
	}

	var keys []string
	if override != "" {
		keys = []string{ResolveObjectKey(prefix, override)}
	} else {
		listPrefix := strings.Trim(strings.TrimSpace(prefix), "/")
		objects, err := client.ListObjects(ctx, listPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects for prefix %s: %w", listPrefix, err)
		}
		for _, obj := range objects {
			if hasExt(obj.Key, exts) {
				keys = append(keys, joinKey(listPrefix, obj.Key))
			}
		}
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no files with extensions %v found for prefix %s", exts, prefix)
	}

	localPaths := make([]string, 0, len(keys))
	for _, key := range keys {
		localPath := filepath.Join(destDir, filepath.FromSlash(objectRelativePath(prefix, key)))
		if err := client.DownloadObject(ctx, key, localPath); err != nil {
			return nil, err
		}
		localPaths = append(localPaths, localPath)
	}

	sort.Strings(localPaths)
	return localPaths, nil
}

func hasExt(key string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(key))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func joinKey(prefix, rel string) string {
	if prefix == "" {
		return strings.TrimPrefix(rel, "/")
	}
	return path.Join(prefix, rel)
}

// ResolveObjectKey turns an override into a full key under prefix.
func ResolveObjectKey(prefix, override string) string {
	if override == "" {
		return strings.TrimSpace(prefix)
	}
	if prefix == "" {
		return strings.TrimPrefix(override, "/")
	}

	prefixTrimmed := strings.TrimSuffix(strings.TrimSpace(prefix), "/")
	overrideTrimmed := strings.TrimPrefix(strings.TrimSpace(override), "/")

	if strings.HasPrefix(overrideTrimmed, prefixTrimmed+"/") {
		return overrideTrimmed
	}
	return fmt.Sprintf("%s/%s", prefixTrimmed, overrideTrimmed)
}

func objectRelativePath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	prefixTrimmed := strings.Trim(strings.TrimSpace(prefix), "/")
	rel := strings.TrimPrefix(key, prefixTrimmed+"/")
	if rel == "" || rel == key {
		return path.Base(key)
	}
	return rel
}
