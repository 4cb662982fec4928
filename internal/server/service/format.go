package service

import (
	"fmt"
	"path/filepath"
	"strings"

	"cloudprime/internal/server/database"
)

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatFileSize renders a byte count with binary prefixes up to GB and two
// decimals, e.g. 1048576 -> "1.00 MB". Counts below 1 KB are printed whole.
func FormatFileSize(bytes int64) string {
	if bytes < 1024 {
		if bytes < 0 {
			bytes = 0
		}
		return fmt.Sprintf("%d B", bytes)
	}

	value := float64(bytes)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", value, sizeUnits[unit])
}

var fileTypesByExt = map[string]string{}

func init() {
	for fileType, exts := range map[string][]string{
		database.FileTypeImage:    {"jpg", "jpeg", "png", "gif", "webp", "bmp", "svg"},
		database.FileTypeVideo:    {"mp4", "webm", "ogg", "mov", "avi", "mkv"},
		database.FileTypeDocument: {"pdf", "doc", "docx", "ppt", "pptx", "xls", "xlsx", "txt", "rtf", "odt"},
	} {
		for _, ext := range exts {
			fileTypesByExt[ext] = fileType
		}
	}
}

// FileTypeFor classifies a file by the extension of its original name.
func FileTypeFor(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if t, ok := fileTypesByExt[ext]; ok {
		return t
	}
	return database.FileTypeOther
}

// usagePercentage is the rounded share of the monthly quota already used.
func usagePercentage(used, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int(float64(used)/float64(limit)*100 + 0.5)
}
