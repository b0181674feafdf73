package card

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// extensionCategories maps common extensions to a coarse content category tag.
var extensionCategories = map[string]string{
	"pdf": "document", "doc": "document", "docx": "document", "odt": "document",
	"txt": "document", "md": "document", "rtf": "document",
	"xls": "spreadsheet", "xlsx": "spreadsheet", "csv": "spreadsheet", "ods": "spreadsheet",
	"ppt": "presentation", "pptx": "presentation", "key": "presentation",
	"jpg": "image", "jpeg": "image", "png": "image", "gif": "image", "webp": "image",
	"heic": "image", "svg": "image", "tiff": "image", "raw": "image", "bmp": "image",
	"mp3": "audio", "wav": "audio", "flac": "audio", "m4a": "audio", "ogg": "audio",
	"mp4": "video", "mov": "video", "mkv": "video", "avi": "video", "webm": "video",
	"zip": "archive", "tar": "archive", "gz": "archive", "rar": "archive", "7z": "archive",
	"go": "code", "py": "code", "js": "code", "ts": "code", "java": "code",
	"c": "code", "cpp": "code", "rs": "code", "rb": "code", "sh": "code",
	"html": "code", "css": "code", "json": "code", "yaml": "code", "yml": "code",
}

// Heuristic derives a deterministic summary and tag set from filesystem
// metadata alone. It is the classification agent's degradation path, so
// planning works fully offline: the confidence and coverage math downstream
// assumes tags are always present, even if heuristic.
func Heuristic(c FileCard) (summary string, tags []string) {
	raw := make([]string, 0, 8)

	if cat, ok := extensionCategories[strings.ToLower(c.Extension)]; ok {
		raw = append(raw, cat)
	}
	if c.Extension != "" {
		raw = append(raw, strings.ToLower(c.Extension))
	}

	// Directory segments of the relative path often encode intent
	// ("Invoices/2024/..."). Keep the ones that look like real words.
	dir := path.Dir(strings.ReplaceAll(c.MatchPath(), "\\", "/"))
	if dir != "." && dir != "/" {
		for _, seg := range strings.Split(dir, "/") {
			for _, word := range splitWords(seg) {
				if isValidHeuristicTag(word) {
					raw = append(raw, strings.ToLower(word))
				}
			}
		}
	}

	// Words in the file name itself, minus the extension.
	base := strings.TrimSuffix(c.Name, path.Ext(c.Name))
	for _, word := range splitWords(base) {
		if isValidHeuristicTag(word) {
			raw = append(raw, strings.ToLower(word))
		}
	}

	if c.MTime > 0 {
		year := time.Unix(c.MTime, 0).UTC().Year()
		raw = append(raw, fmt.Sprintf("%d", year))
	}

	tags = NormalizeTags(raw)

	kind := "file"
	if cat, ok := extensionCategories[strings.ToLower(c.Extension)]; ok {
		kind = cat
	}
	summary = fmt.Sprintf("%s %q", kind, c.Name)
	if dir != "." && dir != "/" && dir != "" {
		summary += fmt.Sprintf(" under %q", dir)
	}
	return summary, tags
}

// splitWords breaks a path segment on common separators.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '.' || r == '(' || r == ')'
	})
}

// isValidHeuristicTag filters out tokens that carry no classification signal:
// short fragments, hex colors, ID-looking strings, URL fragments, and
// digit-heavy tokens. Four-digit tokens pass as likely years.
func isValidHeuristicTag(tag string) bool {
	if len(tag) < 3 {
		return false
	}
	if isYear(tag) {
		return true
	}
	if isHexToken(tag) {
		return false
	}
	if looksLikeID(tag) {
		return false
	}
	if isURLFragment(tag) {
		return false
	}

	digitCount := 0
	for _, ch := range tag {
		if ch >= '0' && ch <= '9' {
			digitCount++
		}
	}
	return float64(digitCount)/float64(len(tag)) <= 0.3
}

func isYear(tag string) bool {
	if len(tag) != 4 {
		return false
	}
	for _, ch := range tag {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return tag[0] == '1' || tag[0] == '2'
}

func isHexToken(tag string) bool {
	if len(tag) != 3 && len(tag) != 6 && len(tag) != 8 {
		return false
	}
	for _, ch := range tag {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') && (ch < 'A' || ch > 'F') {
			return false
		}
	}
	return true
}

func looksLikeID(tag string) bool {
	if len(tag) < 8 {
		return false
	}

	hasUpper := false
	hasLower := false
	hasDigit := false
	consecutiveDigits := 0
	maxConsecutive := 0

	for _, ch := range tag {
		switch {
		case ch >= 'A' && ch <= 'Z':
			hasUpper = true
			consecutiveDigits = 0
		case ch >= 'a' && ch <= 'z':
			hasLower = true
			consecutiveDigits = 0
		case ch >= '0' && ch <= '9':
			hasDigit = true
			consecutiveDigits++
			if consecutiveDigits > maxConsecutive {
				maxConsecutive = consecutiveDigits
			}
		default:
			consecutiveDigits = 0
		}
	}

	if maxConsecutive > 4 {
		return true
	}
	return hasUpper && hasLower && hasDigit && len(tag) > 12
}

func isURLFragment(tag string) bool {
	urlPatterns := []string{
		"http", "https", "ftp", "www", ".com", ".org", ".net", "localhost",
	}
	tagLower := strings.ToLower(tag)
	for _, pattern := range urlPatterns {
		if strings.Contains(tagLower, pattern) {
			return true
		}
	}
	return false
}
