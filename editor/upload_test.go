package editor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	pdfHeader = []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	dwgHeader = append([]byte("AC1032"), make([]byte, 64)...)
)

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    string
		wantErr error
	}{
		{"png", pngHeader, MIMEPNG, nil},
		{"pdf", pdfHeader, MIMEPDF, nil},
		{"dwg", dwgHeader, MIMEDWG, nil},
		{"text", []byte("just some notes about the floor"), "", ErrUnsupportedMIME},
		{"too large", make([]byte, MaxUploadBytes+1), "", ErrUploadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateUpload(tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateUpload: %v", err)
			}
			if got != tt.want {
				t.Errorf("content type = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUploadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/floor-plans/fp-1/file" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "level1.png" {
			t.Errorf("filename = %q, want level1.png", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != MIMEPNG {
			t.Errorf("part content type = %q, want %q", ct, MIMEPNG)
		}
		body, _ := io.ReadAll(file)
		if len(body) != len(pngHeader) {
			t.Errorf("uploaded %d bytes, want %d", len(body), len(pngHeader))
		}
		_, _ = w.Write([]byte(`{"fileUrl":"https://cdn.example.com/fp-1.png"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.baseURL = srv.URL
	res, err := c.UploadFile(context.Background(), "fp-1", "/home/me/level1.png", pngHeader)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if res.FileURL != "https://cdn.example.com/fp-1.png" {
		t.Errorf("FileURL = %q", res.FileURL)
	}
	if res.ContentType != MIMEPNG {
		t.Errorf("ContentType = %q, want %q", res.ContentType, MIMEPNG)
	}
}

func TestUploadFileRejectsBeforeSending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("server should not be called for a rejected upload")
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).UploadFile(context.Background(), "fp-1", "notes.txt", []byte("plain text"))
	if !errors.Is(err, ErrUnsupportedMIME) {
		t.Fatalf("error = %v, want ErrUnsupportedMIME", err)
	}
}
