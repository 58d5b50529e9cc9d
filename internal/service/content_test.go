package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"outer whitespace", "  hello  ", "hello"},
		{"only whitespace", "   \n\t  ", ""},
		{"blank edge lines", "\n\nhello\nworld\n\n", "hello\nworld"},
		{"leading indentation stripped", "  hello\n\t world", "hello\nworld"},
		{"internal blank lines kept", "a\n\nb", "a\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeContent(tt.in))
		})
	}
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "hello", Snippet("hello", 10))
	assert.Equal(t, "first", Snippet("first\nsecond\nthird", 10))
	assert.Equal(t, "hel", Snippet("hello", 3))

	// Truncation counts runes, not bytes.
	assert.Equal(t, "héllø", Snippet("héllø wörld", 5))
}

func TestMediaValidator_LocalUploads(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.png"), []byte("pngdata"), 0o644))
	v := NewMediaValidator(dir, nil)

	t.Run("existing file accepted", func(t *testing.T) {
		ref := v.Validate("/uploads/photo.png", "spoofed.exe", 123456)
		require.NotNil(t, ref)
		assert.Equal(t, "/uploads/photo.png", ref.URL)
		// Name and size come from the stored file, not the client.
		assert.Equal(t, "photo.png", ref.Name)
		assert.Equal(t, int64(7), ref.Size)
	})

	t.Run("missing file rejected", func(t *testing.T) {
		assert.Nil(t, v.Validate("/uploads/nope.png", "", 0))
	})

	t.Run("directory rejected", func(t *testing.T) {
		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
		assert.Nil(t, v.Validate("/uploads/sub", "", 0))
	})

	t.Run("traversal rejected", func(t *testing.T) {
		assert.Nil(t, v.Validate("/uploads/../etc/passwd", "", 0))
		assert.Nil(t, v.Validate("/uploads/..", "", 0))
	})

	t.Run("empty url rejected", func(t *testing.T) {
		assert.Nil(t, v.Validate("", "", 0))
	})
}

func TestMediaValidator_ExternalHosts(t *testing.T) {
	v := NewMediaValidator(t.TempDir(), []string{"cdn.example.com"})

	t.Run("allowed host keeps client metadata", func(t *testing.T) {
		ref := v.Validate("https://cdn.example.com/img.gif", "img.gif", 42)
		require.NotNil(t, ref)
		assert.Equal(t, "img.gif", ref.Name)
		assert.Equal(t, int64(42), ref.Size)
	})

	t.Run("host match is case-insensitive", func(t *testing.T) {
		assert.NotNil(t, v.Validate("https://CDN.Example.COM/img.gif", "img.gif", 1))
	})

	t.Run("unknown host rejected", func(t *testing.T) {
		assert.Nil(t, v.Validate("https://evil.example.com/img.gif", "img.gif", 1))
	})

	t.Run("non-http scheme rejected", func(t *testing.T) {
		assert.Nil(t, v.Validate("ftp://cdn.example.com/img.gif", "img.gif", 1))
		assert.Nil(t, v.Validate("javascript:alert(1)", "x", 1))
	})
}
