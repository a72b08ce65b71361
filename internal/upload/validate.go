package upload

import (
	"bytes"
	"fmt"
	"image"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	// Decoders for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/banshee-data/anpr.dashboard/internal/backend"
)

// detectType resolves the media type of file, preferring the sniffed
// content over the declared type and the extension.
func detectType(file backend.Upload) string {
	sniffed := http.DetectContentType(file.Data)
	if sniffed != "application/octet-stream" && !strings.HasPrefix(sniffed, "text/plain") {
		return sniffed
	}
	if file.ContentType != "" {
		if mt, _, err := mime.ParseMediaType(file.ContentType); err == nil {
			return mt
		}
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(file.Name))); t != "" {
		mt, _, _ := mime.ParseMediaType(t)
		return mt
	}
	return sniffed
}

// validate checks that file is a non-empty file of the given kind and
// returns its resolved media type.
func validate(kind Kind, file backend.Upload) (string, error) {
	if len(file.Data) == 0 {
		return "", fmt.Errorf("%w: %q is empty", ErrUnsupportedFile, file.Name)
	}
	mt := detectType(file)
	if !strings.HasPrefix(mt, string(kind)+"/") {
		return "", fmt.Errorf("%w: %q is %s, not a %s file", ErrUnsupportedFile, file.Name, mt, kind)
	}
	if kind == KindImage {
		if _, _, err := image.DecodeConfig(bytes.NewReader(file.Data)); err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrUnsupportedFile, file.Name, err)
		}
	}
	return mt, nil
}
