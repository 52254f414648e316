package search

import (
	"encoding/binary"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/jszwec/csvutil"

	"github.com/jeffwilliams/hexcore/internal/provider"
)

// decodeText reads the string an occurrence covers. If limit is positive at most limit bytes are
// read.
func decodeText(src provider.Source, o Occurrence, limit uint64) (string, error) {
	n := o.Region.Size
	if limit > 0 {
		n = min(n, limit)
	}
	b := make([]byte, n)
	if err := provider.ReadFull(src, o.Region.Address, b); err != nil {
		return "", err
	}

	switch o.Decode {
	case DecodeUTF16LE, DecodeUTF16BE:
		var order binary.ByteOrder = binary.LittleEndian
		if o.Decode == DecodeUTF16BE {
			order = binary.BigEndian
		}
		units := make([]uint16, len(b)/2)
		for i := range units {
			units[i] = order.Uint16(b[2*i:])
		}
		return string(utf16.Decode(units)), nil
	}
	return string(b), nil
}

// DecodeValue renders the bytes of an occurrence for display: text for strings, a number for
// values and hex bytes otherwise. At most limit bytes are shown when limit is positive.
func DecodeValue(src provider.Source, o Occurrence, limit uint64) (string, error) {
	switch o.Decode {
	case DecodeASCII, DecodeUTF8, DecodeUTF16LE, DecodeUTF16BE:
		return decodeText(src, o, limit)
	case DecodeUnsigned, DecodeSigned, DecodeFloat, DecodeDouble:
		return decodeNumber(src, o)
	}

	n := o.Region.Size
	if limit > 0 {
		n = min(n, limit)
	}
	b := make([]byte, n)
	if err := provider.ReadFull(src, o.Region.Address, b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

func decodeNumber(src provider.Source, o Occurrence) (string, error) {
	size := int(o.Region.Size)
	if size != 1 && size != 2 && size != 4 && size != 8 {
		return "", fmt.Errorf("invalid value size %d", size)
	}
	b := make([]byte, size)
	if err := provider.ReadFull(src, o.Region.Address, b); err != nil {
		return "", err
	}

	var order binary.ByteOrder = binary.LittleEndian
	if o.BigEndian {
		order = binary.BigEndian
	}
	u := readUint(b, size, order)

	switch o.Decode {
	case DecodeSigned:
		shift := 64 - 8*size
		return strconv.FormatInt(int64(u<<shift)>>shift, 10), nil
	case DecodeFloat:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(u))), 'g', -1, 32), nil
	case DecodeDouble:
		return strconv.FormatFloat(math.Float64frombits(u), 'g', -1, 64), nil
	}
	return strconv.FormatUint(u, 10), nil
}

type ExportFormat int

const (
	ExportCSV ExportFormat = iota
	ExportTSV
	ExportJSON
	ExportText
)

var exportFormatNames = []string{"csv", "tsv", "json", "text"}

func (f ExportFormat) String() string {
	if int(f) < len(exportFormatNames) {
		return exportFormatNames[f]
	}
	return fmt.Sprintf("ExportFormat(%d)", int(f))
}

func (f *ExportFormat) UnmarshalText(b []byte) error {
	return parseName(string(b), exportFormatNames, (*int)(f), "export format")
}

// ExportValueLimit is the number of bytes of each occurrence included in an export.
var ExportValueLimit uint64 = 256

type exportRow struct {
	Address string `csv:"address" json:"address"`
	Size    uint64 `csv:"size" json:"size"`
	Type    string `csv:"type" json:"type"`
	Value   string `csv:"value" json:"value"`
}

// Export writes the occurrences and their decoded values to w in format f.
func Export(w io.Writer, f ExportFormat, src provider.Source, occs []Occurrence) error {
	rows := make([]exportRow, 0, len(occs))
	for _, o := range occs {
		v, err := DecodeValue(src, o, ExportValueLimit)
		if err != nil {
			return err
		}
		rows = append(rows, exportRow{
			Address: fmt.Sprintf("0x%08X", o.Region.Address),
			Size:    o.Region.Size,
			Type:    o.Decode.String(),
			Value:   v,
		})
	}

	switch f {
	case ExportCSV, ExportTSV:
		cw := csv.NewWriter(w)
		if f == ExportTSV {
			cw.Comma = '\t'
		}
		if err := csvutil.NewEncoder(cw).Encode(rows); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	case ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case ExportText:
		for _, r := range rows {
			if _, err := fmt.Fprintf(w, "%s\t%d\t%s\n", r.Address, r.Size, strconv.Quote(r.Value)); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown export format %d", f)
}
