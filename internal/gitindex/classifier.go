package gitindex

import (
	"bytes"
	"path"
	"strings"
)

// TextClassifier decides whether a blob is text worth indexing.
type TextClassifier interface {
	IsText(path string, content []byte) bool
}

// TextClassifierFunc adapts a function to TextClassifier.
type TextClassifierFunc func(path string, content []byte) bool

// IsText implements TextClassifier.
func (f TextClassifierFunc) IsText(path string, content []byte) bool {
	return f(path, content)
}

// DefaultExcludePatterns lists paths that are never worth searching:
// dependency trees, lockfiles, generated code and binary media.
var DefaultExcludePatterns = []string{
	"node_modules/**", "vendor/**", ".venv/**", "__pycache__/**",
	"*.min.js", "*.min.css", "*.map",
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "go.sum", "Cargo.lock", "poetry.lock",
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.ico", "*.bmp", "*.webp", "*.psd",
	"*.woff", "*.woff2", "*.ttf", "*.eot", "*.otf",
	"*.zip", "*.tar", "*.gz", "*.7z", "*.bz2", "*.xz", "*.jar",
	"*.exe", "*.dll", "*.so", "*.dylib", "*.a", "*.o", "*.class", "*.pyc",
	"*.pdf", "*.sqlite", "*.db", "*.mp3", "*.mp4", "*.mov",
}

// DefaultMaxBlobSize is the largest blob classified as text.
const DefaultMaxBlobSize int64 = 1024 * 1024

var wideBOMs = [][]byte{
	{0xFF, 0xFE, 0x00, 0x00}, // UTF-32LE
	{0x00, 0x00, 0xFE, 0xFF}, // UTF-32BE
	{0xFF, 0xFE},             // UTF-16LE
	{0xFE, 0xFF},             // UTF-16BE
}

// PathClassifier is the default TextClassifier. A blob is text when its path
// is not excluded, it is within the size limit and it carries no NUL bytes in
// the sniff window, unless it starts with a UTF-16/32 byte order mark.
type PathClassifier struct {
	patterns    []string
	maxBlobSize int64
}

// NewPathClassifier creates a classifier with DefaultExcludePatterns.
func NewPathClassifier(maxBlobSize int64) *PathClassifier {
	return NewPathClassifierWithPatterns(DefaultExcludePatterns, maxBlobSize)
}

// NewPathClassifierWithPatterns creates a classifier with custom patterns.
// A non-positive maxBlobSize disables the size limit.
func NewPathClassifierWithPatterns(patterns []string, maxBlobSize int64) *PathClassifier {
	return &PathClassifier{patterns: patterns, maxBlobSize: maxBlobSize}
}

// IsText implements TextClassifier.
func (c *PathClassifier) IsText(p string, content []byte) bool {
	if c.Excluded(p) {
		return false
	}
	if c.maxBlobSize > 0 && int64(len(content)) > c.maxBlobSize {
		return false
	}
	return !LooksBinary(content)
}

// Excluded reports whether p matches an exclusion pattern.
func (c *PathClassifier) Excluded(p string) bool {
	for _, pattern := range c.patterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// LooksBinary reports NUL bytes in the first DefaultSniffLength bytes of
// content that does not start with a wide byte order mark.
func LooksBinary(content []byte) bool {
	head := content[:min(len(content), DefaultSniffLength)]
	if bytes.IndexByte(head, 0) < 0 {
		return false
	}
	for _, bom := range wideBOMs {
		if bytes.HasPrefix(content, bom) {
			return false
		}
	}
	return true
}

// matchPattern supports three pattern shapes:
// "dir/**" matches any path with a directory component named dir,
// "*.ext" matches by case-insensitive suffix of the base name,
// anything else is a path.Match glob tried on the full path and the base name.
func matchPattern(pattern, p string) bool {
	if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
		parts := strings.Split(p, "/")
		for _, part := range parts[:len(parts)-1] {
			if part == dir {
				return true
			}
		}
		return false
	}

	base := path.Base(p)
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return strings.HasSuffix(strings.ToLower(base), "."+strings.ToLower(suffix))
	}

	if ok, _ := path.Match(pattern, p); ok {
		return true
	}
	ok, _ := path.Match(pattern, base)
	return ok
}
