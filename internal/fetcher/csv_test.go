package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s *CSVStream) ([]CSVRow, error) {
	t.Helper()
	var rows []CSVRow
	for row := range s.Rows {
		rows = append(rows, row)
	}
	return rows, s.Err()
}

func TestReadCSV_HeaderAndRows(t *testing.T) {
	s, err := ReadCSV(context.Background(), strings.NewReader(" hex_id , score\n 7 , 1.5 \n8,2\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"hex_id", "score"}, s.Header)

	rows, err := drain(t, s)
	require.NoError(t, err)
	assert.Equal(t, []CSVRow{
		{Line: 2, Fields: []string{"7", "1.5"}},
		{Line: 3, Fields: []string{"8", "2"}},
	}, rows)
}

func TestReadCSV_StripsBOM(t *testing.T) {
	s, err := ReadCSV(context.Background(), strings.NewReader("\ufeffhex_id,score\n1,2\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hex_id", s.Header[0])
	_, err = drain(t, s)
	require.NoError(t, err)
}

func TestReadCSV_SniffsDelimiter(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		delim rune
	}{
		{"comma", "a,b,c\n1,2,3\n", ','},
		{"semicolon", "a;b;c\n1,5;2;3\n", ';'},
		{"tab", "a\tb\n1\t2\n", '\t'},
		{"single column", "a\n1\n", ','},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ReadCSV(context.Background(), strings.NewReader(tt.in), CSVOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.delim, s.Delimiter)
			rows, err := drain(t, s)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Len(t, rows[0].Fields, len(s.Header))
		})
	}
}

func TestReadCSV_ExplicitDelimiter(t *testing.T) {
	s, err := ReadCSV(context.Background(), strings.NewReader("a;b,c\n1;2,3\n"), CSVOptions{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b,c"}, s.Header)
	_, err = drain(t, s)
	require.NoError(t, err)
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestReadCSV_MalformedQuote(t *testing.T) {
	s, err := ReadCSV(context.Background(), strings.NewReader("a,b\n1,\"2\n"), CSVOptions{})
	require.NoError(t, err)
	_, err = drain(t, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read record")
}

func TestReadCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The header is read before the context is consulted.
	s, err := ReadCSV(ctx, strings.NewReader("a\nb\nc\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, s.Header)

	_, err = drain(t, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}
