package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"german-ocr/internal/shared/storage/object"
)

const (
	MimePDF  = "application/pdf"
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeTIFF = "image/tiff"
	MimeWebP = "image/webp"
)

// ErrNoTextLayer means a PDF holds only scanned images. Rasterizing pages is
// out of scope, so such documents must be submitted as images.
var ErrNoTextLayer = errors.New("pdf has no text layer; submit the scanned pages as images")

// ErrUnsupported is returned for content that is neither a PDF nor an image
// the model runtime accepts.
var ErrUnsupported = errors.New("unsupported document type")

// Kind groups documents by how the gateway processes them.
type Kind int

const (
	KindUnsupported Kind = iota
	KindPDF
	KindImage
)

var extMime = map[string]string{
	".pdf":  MimePDF,
	".png":  MimePNG,
	".jpg":  MimeJPEG,
	".jpeg": MimeJPEG,
	".tif":  MimeTIFF,
	".tiff": MimeTIFF,
	".webp": MimeWebP,
}

// DetectMimeType normalizes a declared content type. Generic or missing
// types fall back to sniffing and then to the file extension.
func DetectMimeType(declared, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	if clean != "" && clean != "application/octet-stream" {
		return clean
	}
	if len(data) > 0 {
		sniffed := strings.Split(http.DetectContentType(data), ";")[0]
		if sniffed != "application/octet-stream" && !strings.HasPrefix(sniffed, "text/") {
			return sniffed
		}
		if isTIFF(data) {
			return MimeTIFF
		}
	}
	if m, ok := extMime[strings.ToLower(filepath.Ext(fileName))]; ok {
		return m
	}
	if clean == "" {
		return "application/octet-stream"
	}
	return clean
}

// KindOf classifies a normalized MIME type.
func KindOf(mimeType string) Kind {
	switch mimeType {
	case MimePDF:
		return KindPDF
	case MimePNG, MimeJPEG, MimeTIFF, MimeWebP, "image/gif", "image/bmp":
		return KindImage
	}
	return KindUnsupported
}

func isTIFF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*"))
}

// Load reads a stored object fully.
func Load(ctx context.Context, store object.ObjectStore, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := store.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// PDFText returns the text layer of every page, pages separated by a form
// feed, along with the page count.
func PDFText(ctx context.Context, data []byte) (string, int, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}

	pages := r.NumPage()
	fonts := make(map[string]*pdf.Font)
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return "", 0, fmt.Errorf("pdf page %d: %w", i, err)
		}
		if i > 1 {
			b.WriteString("\f")
		}
		b.WriteString(strings.TrimSpace(text))
	}

	out := b.String()
	if strings.TrimSpace(strings.ReplaceAll(out, "\f", "")) == "" {
		return "", pages, ErrNoTextLayer
	}
	return out, pages, nil
}
