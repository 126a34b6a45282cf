package bucket

import (
	"path/filepath"
	"strings"
)

var mimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".heic": "image/heic",
	".pdf":  "application/pdf",
}

// MimeForFile maps a known file extension to a MIME type.
func MimeForFile(name string) (string, bool) {
	m, ok := mimeByExt[strings.ToLower(filepath.Ext(name))]
	return m, ok
}
