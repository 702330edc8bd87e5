package codeexec

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// inline base64 images as notebook kernels emit them:
// data:image/png;base64,<payload>
var inlineImagePattern = regexp.MustCompile(`data:image/(png|jpeg|gif|webp);base64,([A-Za-z0-9+/=]+)`)

// ImageCache stores decoded inline images content-addressed by their
// SHA-256, so repeated renders of the same output reference one file
// instead of re-embedding the payload.
type ImageCache struct {
	dir     string
	baseURL string
}

// NewImageCache creates a cache writing files under dir and rewriting
// references to baseURL/<hash>.<ext>.
func NewImageCache(dir, baseURL string) *ImageCache {
	return &ImageCache{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Dir returns the cache directory.
func (c *ImageCache) Dir() string { return c.dir }

// Extract scans text line by line for inline base64 images, writes each to
// the cache, and replaces the payload in place with a dereferenceable URL.
// Undecodable payloads are left untouched.
func (c *ImageCache) Extract(text string) (string, error) {
	if !strings.Contains(text, "base64,") {
		return text, nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return text, fmt.Errorf("create cache directory: %w", err)
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = inlineImagePattern.ReplaceAllStringFunc(line, func(match string) string {
			groups := inlineImagePattern.FindStringSubmatch(match)
			format, payload := groups[1], groups[2]

			data, err := base64.StdEncoding.DecodeString(payload)
			if err != nil {
				return match
			}

			sum := sha256.Sum256(data)
			name := hex.EncodeToString(sum[:]) + "." + extensionFor(format)
			path := filepath.Join(c.dir, name)

			if _, err := os.Stat(path); os.IsNotExist(err) {
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return match
				}
			}

			return c.baseURL + "/" + name
		})
	}

	return strings.Join(lines, "\n"), nil
}

func extensionFor(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
