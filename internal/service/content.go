package service

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// NormalizeContent trims outer whitespace, drops leading and trailing blank
// lines, and strips leading indentation per line while preserving internal
// line breaks.
func NormalizeContent(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	lines := strings.Split(content, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimLeft(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// Snippet returns the first line of content truncated to maxLen runes.
func Snippet(content string, maxLen int) string {
	line := content
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	runes := []rune(line)
	if len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return line
}

const uploadURLPrefix = "/uploads/"

// MediaRef is a validated attachment reference.
type MediaRef struct {
	URL  string
	Name string
	Size int64
}

// MediaValidator accepts managed upload paths that exist on disk and
// external URLs whose host is on the allow-list. Anything else nulls the
// attachment rather than failing the post.
type MediaValidator struct {
	uploadDir    string
	allowedHosts []string
}

// NewMediaValidator returns a validator rooted at uploadDir with the given
// external host allow-list.
func NewMediaValidator(uploadDir string, allowedHosts []string) *MediaValidator {
	return &MediaValidator{
		uploadDir: uploadDir,
		allowedHosts: lo.Map(allowedHosts, func(h string, _ int) string {
			return strings.ToLower(h)
		}),
	}
}

// Validate checks the client-supplied reference. For accepted local uploads
// the filename and size are re-derived from the stored file so clients
// cannot spoof them; external references keep the client-supplied metadata.
// A rejected reference returns nil.
func (v *MediaValidator) Validate(fileURL, fileName string, fileSize int64) *MediaRef {
	if fileURL == "" {
		return nil
	}

	if strings.HasPrefix(fileURL, uploadURLPrefix) {
		rel := filepath.Clean(strings.TrimPrefix(fileURL, uploadURLPrefix))
		if rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			return nil
		}
		abs := filepath.Join(v.uploadDir, rel)
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			return nil
		}
		return &MediaRef{
			URL:  fileURL,
			Name: filepath.Base(abs),
			Size: info.Size(),
		}
	}

	parsed, err := url.Parse(fileURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil
	}
	host := strings.ToLower(parsed.Hostname())
	if !lo.Contains(v.allowedHosts, host) {
		return nil
	}
	return &MediaRef{URL: fileURL, Name: fileName, Size: fileSize}
}
