package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoHeader is returned by ReadCSV when the input has no header row.
var ErrNoHeader = errors.New("csv: no header row")

// candidate delimiters, in tie-break order
var sniffDelimiters = []rune{',', ';', '\t', '|'}

// CSVOptions configures ReadCSV.
type CSVOptions struct {
	Delimiter  rune // 0 sniffs the header line
	Comment    rune // 0 = none
	LazyQuotes bool
}

// CSVRow is one data record. Line is the 1-based line the record starts on.
type CSVRow struct {
	Line   int
	Fields []string
}

// CSVStream is a header plus the records that follow it. Drain Rows, then
// check Err.
type CSVStream struct {
	Header    []string
	Delimiter rune
	Rows      <-chan CSVRow

	errCh <-chan error
}

// Err reports the first read error. Call it after Rows is closed.
func (s *CSVStream) Err() error {
	return <-s.errCh
}

// ReadCSV reads the header row of r synchronously and streams the remaining
// records. Fields are trimmed and a UTF-8 BOM on the first header cell is
// dropped, as spreadsheet exports often carry one.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*CSVStream, error) {
	br := bufio.NewReader(r)
	delim := opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}

	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.Comment = opts.Comment
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	trimFields(header)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	rowCh := make(chan CSVRow, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read record")
				return
			}
			line, _ := reader.FieldPos(0)
			trimFields(record)

			select {
			case rowCh <- CSVRow{Line: line, Fields: record}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return &CSVStream{Header: header, Delimiter: delim, Rows: rowCh, errCh: errCh}, nil
}

// sniffDelimiter picks the candidate that occurs most often on the first
// line. It falls back to a comma.
func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}
	best, bestN := ',', 0
	for _, d := range sniffDelimiters {
		if n := bytes.Count(peek, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

func trimFields(fields []string) {
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
}
