package services

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"realestate-ingest/layout"
	"realestate-ingest/models"
	"realestate-ingest/utils"
)

const maxLineBytes = 1 << 20

// SourceReader streams the data rows of raw source files. It owns the
// header and blank-line skipping so that ParseLine only ever sees data.
type SourceReader struct {
	logger *utils.Logger
}

// NewSourceReader creates a SourceReader with the given logger.
func NewSourceReader(logger *utils.Logger) *SourceReader {
	return &SourceReader{logger: logger}
}

// Read opens src.File and calls fn for every data row. It returns the number
// of physical lines consumed.
func (r *SourceReader) Read(src layout.Source, fn func(models.RawRecord)) (int, error) {
	f, err := os.Open(src.File)
	if err != nil {
		return 0, fmt.Errorf("open source %s: %w", src.File, err)
	}
	defer f.Close()

	return r.ReadFrom(f, src, fn)
}

// ReadFrom is Read over an already opened stream.
func (r *SourceReader) ReadFrom(rd io.Reader, src layout.Source, fn func(models.RawRecord)) (int, error) {
	l := src.Layout
	scanner := bufio.NewScanner(decode(rd, l.Encoding))
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		if lineNo <= l.SkipLines {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if lineNo <= l.HeaderScanLines && strings.HasPrefix(trimmed, `"`) {
			r.logger.Debug("[source] %s:%d header line skipped", src.File, lineNo)
			continue
		}

		fn(models.RawRecord{
			Source: src.File,
			Line:   lineNo,
			Fields: ParseLine(line, l.Delim()),
		})
	}
	if err := scanner.Err(); err != nil {
		return lineNo, fmt.Errorf("read source %s at line %d: %w", src.File, lineNo, err)
	}
	return lineNo, nil
}

func decode(rd io.Reader, encoding string) io.Reader {
	if encoding == layout.EncodingCP949 {
		return transform.NewReader(rd, korean.EUCKR.NewDecoder())
	}
	// Strips a leading UTF-8 BOM and passes the rest through.
	return transform.NewReader(rd, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}
