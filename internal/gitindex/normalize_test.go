package gitindex

import (
	"errors"
	"strings"
	"testing"
)

type stubDetector struct {
	det   Detection
	err   error
	calls int
}

func (d *stubDetector) Detect([]byte) (Detection, error) {
	d.calls++
	return d.det, d.err
}

type panicDetector struct{}

func (panicDetector) Detect([]byte) (Detection, error) {
	panic("detector exploded")
}

func TestNormalizer_ValidUTF8Unchanged(t *testing.T) {
	d := &stubDetector{}
	n := NewNormalizer(d, nil)

	for _, in := range []string{"", "hello", "héllo wörld ✓"} {
		text, ok := n.Normalize([]byte(in))
		if !ok || text != in {
			t.Errorf("Normalize(%q) = %q, %v", in, text, ok)
		}
	}
	if d.calls != 0 {
		t.Errorf("Detector must not run for valid UTF-8, ran %d times", d.calls)
	}
}

func TestNormalizer_DetectionFailure(t *testing.T) {
	n := NewNormalizer(&stubDetector{err: errors.New("no idea")}, nil)

	text, ok := n.Normalize([]byte{0xff, 0xfe, 0xfd})
	if !ok {
		t.Fatal("Expected content to stay indexable")
	}
	if text != "--broken encoding: unknown" {
		t.Errorf("text = %q", text)
	}
}

func TestNormalizer_Binary(t *testing.T) {
	n := NewNormalizer(&stubDetector{det: Detection{Type: ContentBinary}}, nil)

	if _, ok := n.Normalize([]byte{0xff, 0x00, 0x01}); ok {
		t.Error("Expected binary content to be not indexable")
	}
}

func TestNormalizer_Transcodes(t *testing.T) {
	// "café" in ISO-8859-1
	latin1 := []byte{'c', 'a', 'f', 0xe9}
	n := NewNormalizer(&stubDetector{det: Detection{Encoding: "ISO-8859-1"}}, nil)

	text, ok := n.Normalize(latin1)
	if !ok || text != "café" {
		t.Errorf("Normalize = %q, %v, want café", text, ok)
	}
}

func TestNormalizer_TranscodesUTF16(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		content  []byte
		want     string
	}{
		{name: "non-ASCII code unit", encoding: "UTF-16LE", content: []byte{'c', 0, 'a', 0, 'f', 0, 0xe9, 0}, want: "café"},
		{name: "little endian BOM", encoding: "UTF-16LE", content: []byte{0xff, 0xfe, 'h', 0, 'i', 0}, want: "hi"},
		{name: "big endian BOM", encoding: "UTF-16BE", content: []byte{0xfe, 0xff, 0, 'h', 0, 'i'}, want: "hi"},
		{name: "BOM before CJK", encoding: "UTF-16LE", content: []byte{0xff, 0xfe, 0xfd, 0x80}, want: "能"},
		{name: "UTF-32 BOM", encoding: "UTF-32LE", content: []byte{0xff, 0xfe, 0, 0, 'h', 0, 0, 0}, want: "h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizer(&stubDetector{det: Detection{Encoding: tt.encoding}}, nil)

			text, ok := n.Normalize(tt.content)
			if !ok || text != tt.want {
				t.Errorf("Normalize = %q, %v, want %q", text, ok, tt.want)
			}
		})
	}
}

func TestNormalizer_ValidUTF8WithNULsUnchanged(t *testing.T) {
	d := &stubDetector{det: Detection{Encoding: "UTF-16LE"}}
	n := NewNormalizer(d, nil)
	content := []byte{'h', 0x00, 'i', 0x00}

	text, ok := n.Normalize(content)
	if !ok || text != "h\x00i\x00" {
		t.Errorf("Normalize = %q, %v, want the input unchanged", text, ok)
	}
	if d.calls != 0 {
		t.Errorf("Detector must not run for valid UTF-8, ran %d times", d.calls)
	}
}

func TestNormalizer_UnknownEncodingName(t *testing.T) {
	n := NewNormalizer(&stubDetector{det: Detection{Encoding: "X-MADE-UP"}}, nil)

	text, ok := n.Normalize([]byte{0xff, 0xfe})
	if !ok || text != BrokenEncodingPrefix+"X-MADE-UP" {
		t.Errorf("Normalize = %q, %v", text, ok)
	}
}

func TestNormalizer_RecoversFromPanic(t *testing.T) {
	n := NewNormalizer(panicDetector{}, nil)

	text, ok := n.Normalize([]byte{0xff})
	if !ok || !strings.HasPrefix(text, BrokenEncodingPrefix) {
		t.Errorf("Normalize = %q, %v", text, ok)
	}
}

func TestCharsetDetector(t *testing.T) {
	d := NewCharsetDetector()

	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d}
	det, err := d.Detect(png)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Type != ContentBinary {
		t.Errorf("PNG detected as %v", det.Type)
	}

	latin1 := []byte(strings.Repeat("Le caf\xe9 est tr\xe8s bon, merci beaucoup. ", 10))
	det, err = d.Detect(latin1)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Type != ContentText || det.Encoding == "" {
		t.Errorf("Latin-1 text detected as %+v", det)
	}
}

func TestNormalizer_DefaultDetectorEndToEnd(t *testing.T) {
	n := NewNormalizer(nil, nil)

	latin1 := []byte(strings.Repeat("Le caf\xe9 est tr\xe8s bon, merci beaucoup. ", 10))
	text, ok := n.Normalize(latin1)
	if !ok {
		t.Fatal("Expected text to be indexable")
	}
	if !strings.Contains(text, "caf") || strings.ContainsRune(text, '�') {
		t.Errorf("Unexpected normalized text %q", text[:min(len(text), 40)])
	}
}
