package ocr

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Document is the file to analyze, referenced by path or held in memory.
type Document struct {
	Path string
	Name string
	Data []byte
}

// FromPath references a file on disk. It is read when the request is built.
func FromPath(path string) Document {
	return Document{Path: path}
}

// FromBytes wraps an in-memory document. name is sent as the upload file name.
func FromBytes(name string, data []byte) Document {
	return Document{Name: name, Data: data}
}

// FileName is the base name sent in the multipart header.
func (d Document) FileName() string {
	if d.Name != "" {
		return filepath.Base(d.Name)
	}
	if d.Path != "" {
		return filepath.Base(d.Path)
	}
	return "document"
}

// load returns the document bytes, reporting local precondition failures.
func (d Document) load() ([]byte, error) {
	if d.Path == "" {
		if d.Data == nil {
			return nil, &PreconditionError{Field: "document", Err: fmt.Errorf("%w: no path or data", ErrDocumentNotFound)}
		}
		return d.Data, nil
	}
	info, err := os.Stat(d.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &PreconditionError{Field: "document", Err: fmt.Errorf("%w: %s", ErrDocumentNotFound, d.Path)}
		}
		return nil, &PreconditionError{Field: "document", Err: fmt.Errorf("%w: %s: %v", ErrDocumentUnreadable, d.Path, err)}
	}
	if !info.Mode().IsRegular() {
		return nil, &PreconditionError{Field: "document", Err: fmt.Errorf("%w: %s is not a regular file", ErrDocumentUnreadable, d.Path)}
	}
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, &PreconditionError{Field: "document", Err: fmt.Errorf("%w: %s: %v", ErrDocumentUnreadable, d.Path, err)}
	}
	return data, nil
}

// ContentType guesses the MIME type from the file extension, falling back to
// content sniffing.
func ContentType(name string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return strings.TrimSpace(strings.Split(byExt, ";")[0])
	}
	sniff := data
	if len(sniff) > 512 {
		sniff = sniff[:512]
	}
	return strings.TrimSpace(strings.Split(http.DetectContentType(sniff), ";")[0])
}

// SupportedExtension reports whether the service accepts files with this extension.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}
