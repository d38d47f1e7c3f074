package ui_test

import (
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/satishbabariya/exprsql/cli/internal/ui"
	"github.com/satishbabariya/exprsql/query/mapper"
	"github.com/stretchr/testify/assert"
)

func TestFormatValue(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "null", in: nil, want: "NULL"},
		{name: "bytes", in: []byte{0xca, 0xfe}, want: "0xcafe"},
		{name: "time", in: time.Date(2024, 2, 29, 13, 45, 0, 0, time.UTC), want: "2024-02-29T13:45:00Z"},
		{name: "string", in: "Ada", want: "Ada"},
		{name: "int", in: int64(42), want: "42"},
		{name: "float", in: 1.5, want: "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ui.FormatValue(tt.in))
		})
	}
}

func TestRecordTable(t *testing.T) {
	color.NoColor = true
	records := []mapper.Record{
		{"name": "Ada", "id": int64(1)},
		{"name": "Grace", "id": int64(2), "note": nil},
	}

	headers, rows := ui.RecordTable(nil, records)
	assert.Equal(t, []string{"id", "name", "note"}, headers)
	assert.Equal(t, [][]string{{"1", "Ada", "NULL"}, {"2", "Grace", "NULL"}}, rows)

	headers, rows = ui.RecordTable([]string{"name"}, records)
	assert.Equal(t, []string{"name"}, headers)
	assert.Equal(t, [][]string{{"Ada"}, {"Grace"}}, rows)
}
