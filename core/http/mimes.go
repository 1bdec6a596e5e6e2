package http

import (
	"path/filepath"
	"strings"
)

// DefaultMIMEType is returned for extensions the table does not know.
const DefaultMIMEType = "application/octet-stream"

var mimeTypes = map[string]string{
	".html":     "text/html",
	".htm":      "text/html",
	".css":      "text/css",
	".js":       "application/javascript",
	".json":     "application/json",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".gif":      "image/gif",
	".svg":      "image/svg+xml",
	".ico":      "image/x-icon",
	".pdf":      "application/pdf",
	".txt":      "text/plain",
	".xml":      "application/xml",
	".mp3":      "audio/mpeg",
	".mp4":      "video/mp4",
	".webm":     "video/webm",
	".woff":     "font/woff",
	".woff2":    "font/woff2",
	".ttf":      "font/ttf",
	".otf":      "font/otf",
	".zip":      "application/zip",
	".gz":       "application/gzip",
	".tar":      "application/x-tar",
	".csv":      "text/csv",
	".doc":      "application/msword",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":      "application/vnd.ms-excel",
	".xlsx":     "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":      "application/vnd.ms-powerpoint",
	".pptx":     "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".avi":      "video/x-msvideo",
	".bmp":      "image/bmp",
	".epub":     "application/epub+zip",
	".flv":      "video/x-flv",
	".m4a":      "audio/mp4",
	".m4v":      "video/mp4",
	".mkv":      "video/x-matroska",
	".ogg":      "audio/ogg",
	".ogv":      "video/ogg",
	".oga":      "audio/ogg",
	".opus":     "audio/opus",
	".wav":      "audio/wav",
	".webp":     "image/webp",
	".tiff":     "image/tiff",
	".tif":      "image/tiff",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".yaml":     "application/yaml",
	".yml":      "application/yaml",
	".rar":      "application/vnd.rar",
	".7z":       "application/x-7z-compressed",
	".apk":      "application/vnd.android.package-archive",
	".exe":      "application/x-msdownload",
	".dll":      "application/x-msdownload",
	".swf":      "application/x-shockwave-flash",
	".rtf":      "application/rtf",
	".eot":      "application/vnd.ms-fontobject",
	".ps":       "application/postscript",
	".sqlite":   "application/x-sqlite3",
	".db":       "application/x-sqlite3",
}

// MIMEType looks up the content type for a file path by its extension,
// case-insensitively. Unknown or missing extensions fall back to
// DefaultMIMEType.
func MIMEType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return DefaultMIMEType
	}
	if mime, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return DefaultMIMEType
}
