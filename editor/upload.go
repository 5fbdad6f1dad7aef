package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// MaxUploadBytes is the largest floor plan source file accepted.
const MaxUploadBytes = 50 << 20

// Accepted upload content types.
const (
	MIMEPDF = "application/pdf"
	MIMEPNG = "image/png"
	MIMEDWG = "application/vnd.autocad.dwg"
)

// allowedUploads maps a sniffed type to the canonical type sent upstream.
// AutoCAD drawings are sniffed under their registered image/vnd.dwg name.
var allowedUploads = map[string]string{
	MIMEPDF:         MIMEPDF,
	MIMEPNG:         MIMEPNG,
	"image/vnd.dwg": MIMEDWG,
}

// ValidateUpload checks a source file before it is sent anywhere. The
// content type comes from the bytes, not the file name. It returns the
// canonical content type.
func ValidateUpload(data []byte) (string, error) {
	if len(data) > MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrUploadTooLarge, len(data), MaxUploadBytes)
	}
	detected := mimetype.Detect(data)
	for sniffed, canonical := range allowedUploads {
		if detected.Is(sniffed) {
			return canonical, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedMIME, detected.String())
}

// UploadResult is the server's answer to a file upload.
type UploadResult struct {
	FileURL     string `json:"fileUrl"`
	ContentType string `json:"contentType,omitempty"`
}

// UploadFile validates and uploads the source drawing for a floor plan.
func (c *APIClient) UploadFile(ctx context.Context, planID, filename string, data []byte) (*UploadResult, error) {
	contentType, err := ValidateUpload(data)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}

	resp, err := c.do(ctx, "upload file", request{
		method:      http.MethodPost,
		path:        planPath(planID) + "/file",
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}

	var out UploadResult
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("upload %s: decoding response: %w", filename, err)
	}
	if out.ContentType == "" {
		out.ContentType = contentType
	}
	return &out, nil
}
