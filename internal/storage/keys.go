package storage

import (
	"path"
	"strings"
)

var subtitleExtensions = map[string]string{
	".srt": "application/x-subrip",
	".vtt": "text/vtt",
}

// EnsureSubtitleExtension appends ".srt" unless name already ends in a subtitle extension.
func EnsureSubtitleExtension(name string) string {
	if _, ok := subtitleExtensions[strings.ToLower(path.Ext(name))]; ok {
		return name
	}
	return name + ".srt"
}

// SubtitleKey is the storage key of a tenant's subtitle file.
func SubtitleKey(tenantID, fileName string) string {
	tenant := strings.Trim(tenantID, "/")
	if tenant == "" {
		tenant = "shared"
	}
	return path.Join(tenant, "subtitles", EnsureSubtitleExtension(path.Base(fileName)))
}

func subtitleContentType(name string) string {
	if ct, ok := subtitleExtensions[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "text/plain; charset=utf-8"
}
