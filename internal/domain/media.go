package domain

import (
	"path"
	"strings"
)

// DefaultVideoContentType is used when a file extension is not recognized.
const DefaultVideoContentType = "video/mp4"

var videoContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".wmv":  "video/x-ms-wmv",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
}

// VideoContentType derives a MIME type from the extension of a file name or URL path.
func VideoContentType(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if ct, ok := videoContentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return DefaultVideoContentType
}
