// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package fetch retrieves raw policy text for the pipeline: HTTP pages
// with tag stripping, local text files, and PDF documents.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	ledongthuc "github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"policyscan/internal/resilience"
)

// DefaultTimeout bounds one HTTP fetch.
const DefaultTimeout = 30 * time.Second

const userAgent = "Mozilla/5.0 (compatible; policyscan/1.0; research)"

// maxDocumentBytes caps a fetched document at 20 MB.
const maxDocumentBytes = 20 << 20

// Fetcher retrieves documents over HTTP or from disk.
type Fetcher struct {
	client *http.Client
}

// NewFetcher builds a fetcher; a zero timeout means DefaultTimeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch resolves a source to plain text. Sources starting with http://
// or https:// are fetched over the network; anything else is read as a
// local path, with .pdf files going through PDF extraction.
func (f *Fetcher) Fetch(ctx context.Context, source string) (string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return f.FetchURL(ctx, source)
	}
	return ReadFile(source)
}

// FetchURL downloads a document and converts it to plain text based on
// its content type.
func (f *Fetcher) FetchURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", resilience.NewPermanentError(fmt.Sprintf("invalid url %s", url), err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", resilience.ClassifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", resilience.NewTransientError(fmt.Sprintf("fetch %s: status %d", url, resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return "", resilience.NewPermanentError(fmt.Sprintf("fetch %s: status %d", url, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", resilience.ClassifyError(err)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "pdf") || bytes.HasPrefix(body, []byte("%PDF")) {
		return extractPDFBytes(body)
	}
	if strings.Contains(contentType, "html") || looksLikeHTML(body) {
		return StripHTML(string(body)), nil
	}
	return string(body), nil
}

// ReadFile loads a local document, extracting text from PDFs.
func ReadFile(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractPDFFile(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", resilience.NewPermanentError(fmt.Sprintf("reading %s", path), err)
	}
	if looksLikeHTML(data) {
		return StripHTML(string(data)), nil
	}
	return string(data), nil
}

// extractPDFFile validates the document first so a truncated download
// fails loudly instead of yielding partial text.
func extractPDFFile(path string) (string, error) {
	if err := pdfapi.ValidateFile(path, nil); err != nil {
		return "", resilience.NewPermanentError(fmt.Sprintf("invalid pdf %s", path), err)
	}

	file, reader, err := ledongthuc.Open(path)
	if err != nil {
		return "", resilience.NewPermanentError(fmt.Sprintf("opening pdf %s", path), err)
	}
	defer file.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", resilience.NewPermanentError(fmt.Sprintf("extracting pdf %s", path), err)
	}
	var b strings.Builder
	if _, err := io.Copy(&b, content); err != nil {
		return "", resilience.NewPermanentError(fmt.Sprintf("extracting pdf %s", path), err)
	}
	return b.String(), nil
}

func extractPDFBytes(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "policyscan-*.pdf")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	return extractPDFFile(tmp.Name())
}

func looksLikeHTML(data []byte) bool {
	head := strings.ToLower(string(data[:min(len(data), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
