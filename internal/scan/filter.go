package scan

import (
	"path/filepath"
	"strings"
)

// defaultMediaExtensions is the built-in extension allow-list.
var defaultMediaExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpg":  true,
	".mpeg": true,
	".ts":   true,
	".m2ts": true,
	".vob":  true,
	".3gp":  true,
	".ogv":  true,
}

// extensionSet builds the allow-list for a scan; an empty configured list
// falls back to the defaults.
func extensionSet(extensions []string) map[string]bool {
	if len(extensions) == 0 {
		return defaultMediaExtensions
	}
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}

func hasAllowedExtension(path string, allowed map[string]bool) bool {
	return allowed[strings.ToLower(filepath.Ext(path))]
}

// isHiddenOrTempFile reports files that should never be scanned: hidden
// files, editor/downloader temporaries and partial downloads.
func isHiddenOrTempFile(path string) bool {
	name := filepath.Base(path)
	nameLower := strings.ToLower(name)

	if strings.HasPrefix(name, ".") {
		return true
	}
	if strings.HasSuffix(nameLower, ".tmp") || strings.HasSuffix(nameLower, ".temp") {
		return true
	}
	if strings.HasSuffix(nameLower, ".part") || strings.HasSuffix(nameLower, ".partial") {
		return true
	}
	// qBittorrent / SABnzbd / NZBGet incomplete markers.
	if strings.HasSuffix(nameLower, ".!qb") || strings.HasSuffix(nameLower, ".nzbget") {
		return true
	}
	if strings.HasPrefix(name, "__") || strings.Contains(nameLower, ".nzb") {
		return true
	}
	return false
}
