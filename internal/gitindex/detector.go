package gitindex

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gogs/chardet"
	"github.com/h2non/filetype"
)

// DefaultSniffLength is how many leading bytes are inspected for NUL bytes,
// matching git's own binary heuristic.
const DefaultSniffLength = 8000

// CharsetDetector is the default EncodingDetector. Known binary formats are
// recognized by their magic numbers; everything else goes through statistical
// charset detection.
type CharsetDetector struct {
	text     *chardet.Detector
	sniffLen int
}

// NewCharsetDetector creates a detector with the default sniff length.
func NewCharsetDetector() *CharsetDetector {
	return &CharsetDetector{
		text:     chardet.NewTextDetector(),
		sniffLen: DefaultSniffLength,
	}
}

// Detect implements EncodingDetector.
func (d *CharsetDetector) Detect(content []byte) (Detection, error) {
	head := content[:min(len(content), d.sniffLen)]

	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		return Detection{Type: ContentBinary, Confidence: 100}, nil
	}

	res, err := d.text.DetectBest(content)
	if err != nil || res == nil {
		if bytes.IndexByte(head, 0) >= 0 {
			return Detection{Type: ContentBinary}, nil
		}
		return Detection{}, fmt.Errorf("charset not detected: %w", err)
	}

	// NUL bytes only occur in text encoded with wide code units.
	if !isWideCharset(res.Charset) && bytes.IndexByte(head, 0) >= 0 {
		return Detection{Encoding: res.Charset, Type: ContentBinary, Confidence: res.Confidence}, nil
	}

	return Detection{Encoding: res.Charset, Type: ContentText, Confidence: res.Confidence}, nil
}

func isWideCharset(name string) bool {
	name = strings.ToUpper(name)
	return strings.HasPrefix(name, "UTF-16") || strings.HasPrefix(name, "UTF-32")
}
