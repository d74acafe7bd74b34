package gitindex

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// BrokenEncodingPrefix starts the placeholder stored for content that could
// not be transcoded. The detected encoding name, or "unknown", follows it.
const BrokenEncodingPrefix = "--broken encoding: "

// ContentType is the detector's verdict on raw content.
type ContentType int

const (
	ContentText ContentType = iota
	ContentBinary
)

// Detection is a best guess about the encoding of raw content.
type Detection struct {
	Encoding   string
	Type       ContentType
	Confidence int
}

// EncodingDetector guesses the encoding and type of raw content.
type EncodingDetector interface {
	Detect(content []byte) (Detection, error)
}

// ContentNormalizer turns raw blob content into indexable text.
// The boolean result is false when the content must not be indexed.
type ContentNormalizer interface {
	Normalize(content []byte) (string, bool)
}

// Normalizer converts raw content to valid UTF-8. It never fails: content
// that cannot be converted yields a placeholder rather than an error.
type Normalizer struct {
	detector EncodingDetector
	logger   *slog.Logger
}

// NewNormalizer creates a normalizer. A nil detector selects the default
// CharsetDetector.
func NewNormalizer(detector EncodingDetector, logger *slog.Logger) *Normalizer {
	if detector == nil {
		detector = NewCharsetDetector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{detector: detector, logger: logger}
}

// Normalize returns content as UTF-8 text. Valid UTF-8 is returned unchanged.
// Anything else is run through the detector: binary content is reported as
// not indexable, other content is transcoded lossily.
func (n *Normalizer) Normalize(content []byte) (text string, indexable bool) {
	if utf8.Valid(content) {
		return string(content), true
	}

	encodingName := ""
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("Recovered from transcoding panic", "encoding", encodingName, "panic", r)
			text, indexable = brokenEncoding(encodingName), true
		}
	}()

	det, err := n.detector.Detect(content)
	if err != nil {
		n.logger.Debug("Encoding detection failed", "error", err)
		return brokenEncoding(""), true
	}
	encodingName = det.Encoding

	if det.Type == ContentBinary {
		return "", false
	}

	out, err := transcode(content, det.Encoding)
	if err != nil {
		n.logger.Debug("Transcoding failed", "encoding", det.Encoding, "error", err)
		return brokenEncoding(det.Encoding), true
	}
	return out, true
}

const byteOrderMark = "\ufeff"

func brokenEncoding(name string) string {
	if name == "" {
		name = "unknown"
	}
	return BrokenEncodingPrefix + name
}

// transcode decodes content from the named encoding (raw bytes when name is
// empty), round-trips it through UTF-16 and drops replacement and NUL runes
// and a leading byte order mark.
func transcode(content []byte, name string) (string, error) {
	var decoder transform.Transformer = transform.Nop
	if name != "" {
		enc, err := lookupEncoding(name)
		if err != nil {
			return "", err
		}
		decoder = enc.NewDecoder()
	}

	wide := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	chain := transform.Chain(
		decoder,
		wide.NewEncoder(),
		wide.NewDecoder(),
		runes.Remove(runes.Predicate(func(r rune) bool {
			return r == utf8.RuneError || r == 0
		})),
	)

	out, _, err := transform.Bytes(chain, content)
	if err != nil {
		return "", fmt.Errorf("transcode from %s: %w", name, err)
	}
	if !utf8.Valid(out) {
		return "", fmt.Errorf("transcode from %s produced invalid UTF-8", name)
	}
	// Decoders for UTF-16 and UTF-32 keep a byte order mark as U+FEFF.
	return strings.TrimPrefix(string(out), byteOrderMark), nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(name) {
	case "UTF-32BE":
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM), nil
	case "UTF-32LE":
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM), nil
	}

	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}
