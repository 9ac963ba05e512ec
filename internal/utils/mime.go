package utils

import (
	"path/filepath"
	"strings"
)

var importExtensions = map[string]bool{
	".txt":   true,
	".csv":   true,
	".json":  true,
	".jsonl": true,
}

// ImportExtension returns the lower-cased extension of an uploaded file and
// whether the import flow accepts it.
func ImportExtension(filename string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext, importExtensions[ext]
}

func GetMimeFromExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "csv":
		return "text/csv"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "json":
		return "application/json"
	case "jsonl":
		return "application/x-ndjson"
	case "txt":
		return "text/plain"
	case "png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
