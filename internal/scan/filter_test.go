package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtensionSet(t *testing.T) {
	// Empty config falls back to the built-in list.
	def := extensionSet(nil)
	assert.True(t, def[".mkv"])
	assert.True(t, def[".mp4"])

	custom := extensionSet([]string{".MKV", "mp4"})
	assert.True(t, custom[".mkv"], "extensions are normalized to lowercase")
	assert.True(t, custom[".mp4"], "a missing leading dot is tolerated")
	assert.False(t, custom[".avi"])
}

func TestHasAllowedExtension(t *testing.T) {
	allowed := extensionSet(nil)
	assert.True(t, hasAllowedExtension("/media/a.mkv", allowed))
	assert.True(t, hasAllowedExtension("/media/A.MKV", allowed))
	assert.False(t, hasAllowedExtension("/media/notes.txt", allowed))
	assert.False(t, hasAllowedExtension("/media/noext", allowed))
}

func TestIsHiddenOrTempFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/media/show.mkv", false},
		{"/media/.hidden.mkv", true},
		{"/media/show.mkv.tmp", true},
		{"/media/show.mkv.part", true},
		{"/media/show.mkv.!qb", true},
		{"/media/__pending.mkv", true},
		{"/media/.grab/show.mkv", false}, // only the filename itself is checked
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isHiddenOrTempFile(tt.path), tt.path)
	}
}
