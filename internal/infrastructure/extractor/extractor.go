package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
)

var pdfMagic = []byte("%PDF-")

// Extractor reads a stored document and returns its text per page. PDFs are
// parsed page by page, XLSX workbooks yield one page per sheet, and anything
// else must be UTF-8 text and becomes page 1.
type Extractor struct {
	storage ports.BlobStore
}

func New(storage ports.BlobStore) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) ([]ports.PageText, error) {
	reader, err := e.storage.Open(ctx, doc.Path)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}

	if bytes.HasPrefix(raw, pdfMagic) || strings.HasSuffix(strings.ToLower(doc.Name), ".pdf") {
		return extractPDF(raw, doc.Name)
	}
	if strings.HasSuffix(strings.ToLower(doc.Name), ".xlsx") {
		return extractWorkbook(raw, doc.Name)
	}

	if !utf8.Valid(raw) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("unsupported binary format: %s", doc.Name))
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, nil
	}
	return []ports.PageText{{Page: 1, Text: text}}, nil
}

func extractPDF(raw []byte, name string) (pages []ports.PageText, err error) {
	// The pdf package panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = domain.WrapError(domain.ErrInvalidInput, "parse pdf", fmt.Errorf("%s: %v", name, r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open pdf", fmt.Errorf("%s: %w", name, err))
	}

	pages = make([]ports.PageText, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, ports.PageText{Page: i, Text: text})
	}
	return pages, nil
}

func extractWorkbook(raw []byte, name string) ([]ports.PageText, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open workbook", fmt.Errorf("%s: %w", name, err))
	}
	defer f.Close()

	var pages []ports.PageText
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		var b strings.Builder
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			continue
		}
		pages = append(pages, ports.PageText{Page: i + 1, Text: sheet + "\n" + text})
	}
	return pages, nil
}
