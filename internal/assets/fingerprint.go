// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// skippedDirectories never reach the build context.
var skippedDirectories = map[string]struct{}{
	".git":         {},
	"__pycache__":  {},
	".venv":        {},
	"node_modules": {},
}

// Fingerprint hashes the relative path and content of every file in the build context
// together with the build options, so any change to either yields a new image tag.
func Fingerprint(dir string, opts BuildOptions) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "platform=%s\ndockerfile=%s\n", opts.Platform, opts.Dockerfile)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := skippedDirectories[d.Name()]; skip && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(h, "file=%s\n", filepath.ToSlash(rel))

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(h, f)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint %s: %w", dir, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func excludePatterns() []string {
	var patterns []string
	for name := range skippedDirectories {
		patterns = append(patterns, name, "**/"+name)
	}
	return patterns
}
