package packaging

import (
	"mime"
	"path/filepath"
	"strings"
)

// Categories recorded in container metadata.
const (
	TypeText      = "text"
	TypeDocument  = "document"
	TypeImage     = "image"
	TypeArchive   = "archive"
	TypeMedia     = "media"
	TypeBinary    = "binary"
	TypeDirectory = "directory"
)

const (
	defaultMIME   = "application/octet-stream"
	directoryMIME = "application/x-tar"
)

var categories = map[string][]string{
	TypeText:     {".txt", ".md", ".log", ".csv", ".json", ".xml", ".html", ".css", ".js", ".py", ".sh", ".c", ".cpp", ".java", ".go"},
	TypeDocument: {".pdf", ".doc", ".docx", ".odt", ".rtf", ".tex"},
	TypeImage:    {".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".svg", ".webp"},
	TypeArchive:  {".zip", ".tar", ".gz", ".bz2", ".7z", ".rar", ".xz", ".zst"},
	TypeMedia:    {".mp3", ".mp4", ".avi", ".mkv", ".wav", ".flac"},
	TypeBinary:   {".exe", ".bin", ".dat", ".db", ".sqlite"},
}

// fallbackMIME covers common extensions missing from mime's built-in table
// on hosts without a system mime.types file.
var fallbackMIME = map[string]string{
	".txt": "text/plain; charset=utf-8",
	".md":  "text/markdown; charset=utf-8",
	".csv": "text/csv; charset=utf-8",
	".zip": "application/zip",
	".tar": "application/x-tar",
	".gz":  "application/gzip",
	".mp3": "audio/mpeg",
	".mp4": "video/mp4",
}

var categoryByExt = func() map[string]string {
	m := make(map[string]string)
	for category, exts := range categories {
		for _, ext := range exts {
			m[ext] = category
		}
	}
	return m
}()

// Identify returns the category and MIME type for a file name. Unknown
// extensions are binary and application/octet-stream.
func Identify(name string) (category, mimeType string) {
	ext := strings.ToLower(filepath.Ext(name))
	category = TypeBinary
	if c, ok := categoryByExt[ext]; ok {
		category = c
	}
	mimeType = defaultMIME
	if ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			mimeType = t
		} else if t, ok := fallbackMIME[ext]; ok {
			mimeType = t
		}
	}
	return category, mimeType
}
