package agent

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxImageSize caps attachments at 20 MB before base64 expansion.
const maxImageSize = 20 * 1024 * 1024

var imageMediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// IsImagePath reports whether the path has a supported image extension.
func IsImagePath(path string) bool {
	_, ok := imageMediaTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

func mediaTypeForPath(path string) string {
	return imageMediaTypes[strings.ToLower(filepath.Ext(path))]
}

// LoadImageBlock reads an image file and returns it as a base64-encoded
// image content block.
func LoadImageBlock(path string) (ContentBlock, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ContentBlock{}, fmt.Errorf("cannot access image file %s: %w", path, err)
	}
	if info.Size() > maxImageSize {
		return ContentBlock{}, fmt.Errorf("image file too large: %d bytes (max %d bytes)", info.Size(), maxImageSize)
	}
	mediaType := mediaTypeForPath(path)
	if mediaType == "" {
		return ContentBlock{}, fmt.Errorf("unsupported image format: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ContentBlock{}, fmt.Errorf("reading image file %s: %w", path, err)
	}
	return ImageBlock(mediaType, base64.StdEncoding.EncodeToString(data)), nil
}

// DetectImagePaths scans user input for whitespace-separated tokens that
// look like image paths and exist on disk.
func DetectImagePaths(input string) []string {
	var paths []string
	for _, token := range strings.Fields(input) {
		if !IsImagePath(token) {
			continue
		}
		if _, err := os.Stat(token); err == nil {
			paths = append(paths, token)
		}
	}
	return paths
}
