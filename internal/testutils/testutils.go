// Package testutils provides shared fixtures for tests.
package testutils

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// PDFOptions describes a generated PDF document
type PDFOptions struct {
	Version   string // header version, default "1.4"
	Pages     int    // number of page objects, default 1
	Encrypted bool   // adds an /Encrypt reference to the trailer
	Comment   string // free text embedded as a PDF comment, useful to make documents distinct
	Padding   int    // bytes of filler stream content to inflate the document
}

// BuildPDF generates a small but structurally complete PDF document
func BuildPDF(opts PDFOptions) []byte {
	if opts.Version == "" {
		opts.Version = "1.4"
	}
	if opts.Pages <= 0 {
		opts.Pages = 1
	}

	var objects []string
	kids := make([]string, 0, opts.Pages)
	for i := 0; i < opts.Pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", i+4))
	}

	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", join(kids), opts.Pages),
	)

	filler := bytes.Repeat([]byte("0"), opts.Padding)
	objects = append(objects, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(filler), filler))

	for i := 0; i < opts.Pages; i++ {
		objects = append(objects, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 3 0 R >>")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n", opts.Version)
	if opts.Comment != "" {
		fmt.Fprintf(&buf, "%% %s\n", opts.Comment)
	}

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}

	trailer := fmt.Sprintf("<< /Size %d /Root 1 0 R", len(objects)+1)
	if opts.Encrypted {
		trailer += " /Encrypt 99 0 R"
	}
	trailer += " >>"
	fmt.Fprintf(&buf, "trailer\n%s\nstartxref\n%d\n%%%%EOF\n", trailer, xrefOffset)

	return buf.Bytes()
}

// MinimalPDF returns a valid one-page PDF carrying the given comment
func MinimalPDF(comment string) []byte {
	return BuildPDF(PDFOptions{Comment: comment})
}

func join(parts []string) string {
	var b bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}

// PDFServer is an httptest server serving generated documents by path
type PDFServer struct {
	*httptest.Server

	mu       sync.Mutex
	docs     map[string][]byte
	requests atomic.Int64
	headers  []http.Header
}

// StartPDFServer starts a server that serves docs keyed by URL path
func StartPDFServer(t *testing.T, docs map[string][]byte) *PDFServer {
	t.Helper()

	s := &PDFServer{docs: docs}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)

		s.mu.Lock()
		s.headers = append(s.headers, r.Header.Clone())
		data, ok := s.docs[r.URL.Path]
		s.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(data)
	}))
	t.Cleanup(s.Close)
	return s
}

// Requests returns how many requests the server has received
func (s *PDFServer) Requests() int64 {
	return s.requests.Load()
}

// Headers returns a copy of the request headers seen so far
func (s *PDFServer) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}
