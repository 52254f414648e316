package search

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffwilliams/hexcore/internal/region"
)

func exportSample(t *testing.T, f ExportFormat) string {
	p := openMemory(t, []byte("xhi\x00\x01\x02"))
	occs := []Occurrence{
		{Region: region.Region{Address: 1, Size: 2}, Decode: DecodeASCII},
		{Region: region.Region{Address: 4, Size: 2}, Decode: DecodeBinary},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, f, p, occs))
	return buf.String()
}

func TestExportCSV(t *testing.T) {
	expected := "address,size,type,value\n" +
		"0x00000001,2,ascii,hi\n" +
		"0x00000004,2,binary,0102\n"
	assert.Equal(t, expected, exportSample(t, ExportCSV))
}

func TestExportTSV(t *testing.T) {
	expected := "address\tsize\ttype\tvalue\n" +
		"0x00000001\t2\tascii\thi\n" +
		"0x00000004\t2\tbinary\t0102\n"
	assert.Equal(t, expected, exportSample(t, ExportTSV))
}

func TestExportJSON(t *testing.T) {
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(exportSample(t, ExportJSON)), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "0x00000001", rows[0]["address"])
	assert.Equal(t, float64(2), rows[0]["size"])
	assert.Equal(t, "ascii", rows[0]["type"])
	assert.Equal(t, "hi", rows[0]["value"])
	assert.Equal(t, "0102", rows[1]["value"])
}

func TestExportText(t *testing.T) {
	assert.Equal(t, "0x00000001\t2\t\"hi\"\n0x00000004\t2\t\"0102\"\n", exportSample(t, ExportText))
}

func TestDecodeValue(t *testing.T) {
	p := openMemory(t, []byte{0xFE, 0xFF, 0x00, 0x00, 0xC0, 0x3F, 'h', 0, 'i', 0})

	tests := []struct {
		name     string
		o        Occurrence
		limit    uint64
		expected string
	}{
		{"unsigned", Occurrence{Region: region.Region{Address: 0, Size: 2}, Decode: DecodeUnsigned}, 0, "65534"},
		{"signed", Occurrence{Region: region.Region{Address: 0, Size: 2}, Decode: DecodeSigned}, 0, "-2"},
		{"signed big endian", Occurrence{Region: region.Region{Address: 0, Size: 2}, Decode: DecodeSigned, BigEndian: true}, 0, "-257"},
		{"float", Occurrence{Region: region.Region{Address: 2, Size: 4}, Decode: DecodeFloat}, 0, "1.5"},
		{"utf16", Occurrence{Region: region.Region{Address: 6, Size: 4}, Decode: DecodeUTF16LE}, 0, "hi"},
		{"utf16 limited", Occurrence{Region: region.Region{Address: 6, Size: 4}, Decode: DecodeUTF16LE}, 2, "h"},
		{"binary limited", Occurrence{Region: region.Region{Address: 0, Size: 6}, Decode: DecodeBinary}, 3, "FEFF00"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := DecodeValue(p, tc.o, tc.limit)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, s)
		})
	}
}

func TestExportFormatText(t *testing.T) {
	var f ExportFormat
	require.NoError(t, f.UnmarshalText([]byte("TSV")))
	assert.Equal(t, ExportTSV, f)
	assert.Error(t, f.UnmarshalText([]byte("xml")))
}
