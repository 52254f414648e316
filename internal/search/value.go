package search

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"golang.org/x/exp/constraints"

	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
)

type ValueType int

const (
	U8 ValueType = iota
	U16
	U32
	U64
	S8
	S16
	S32
	S64
	F32
	F64
)

var valueTypeNames = []string{"u8", "u16", "u32", "u64", "s8", "s16", "s32", "s64", "f32", "f64"}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

func (t ValueType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ValueType) UnmarshalText(b []byte) error {
	return parseName(string(b), valueTypeNames, (*int)(t), "value type")
}

func (t ValueType) Size() int {
	switch t {
	case U8, S8:
		return 1
	case U16, S16:
		return 2
	case U32, S32, F32:
		return 4
	}
	return 8
}

func (t ValueType) decode() DecodeType {
	switch t {
	case S8, S16, S32, S64:
		return DecodeSigned
	case F32:
		return DecodeFloat
	case F64:
		return DecodeDouble
	}
	return DecodeUnsigned
}

// Value finds numbers in the inclusive range [Min, Max]. Max defaults to Min. Integers may be
// written in any base strconv accepts with a prefix.
type Value struct {
	Type      ValueType `json:"type"`
	Min       string    `json:"min"`
	Max       string    `json:"max"`
	BigEndian bool      `json:"big_endian"`
	// Aligned only tests addresses that are a multiple of the value size from the region start.
	Aligned bool `json:"aligned"`
}

type number interface {
	constraints.Integer | constraints.Float
}

func parseBound(s string, t ValueType) (interface{}, error) {
	bits := 8 * t.Size()
	fail := func(err error) error {
		return &PatternError{Input: s, Reason: fmt.Sprintf("not a valid %s: %v", t, err)}
	}

	switch t.decode() {
	case DecodeUnsigned:
		v, err := strconv.ParseUint(s, 0, bits)
		if err != nil {
			return nil, fail(err)
		}
		return v, nil
	case DecodeSigned:
		v, err := strconv.ParseInt(s, 0, bits)
		if err != nil {
			return nil, fail(err)
		}
		return v, nil
	}
	v, err := strconv.ParseFloat(s, bits)
	if err != nil {
		return nil, fail(err)
	}
	return v, nil
}

func searchValue(sc *scanner, src provider.Source, s Value) ([]Occurrence, error) {
	maxStr := s.Max
	if maxStr == "" {
		maxStr = s.Min
	}
	lo, err := parseBound(s.Min, s.Type)
	if err != nil {
		return nil, err
	}
	hi, err := parseBound(maxStr, s.Type)
	if err != nil {
		return nil, err
	}

	var order binary.ByteOrder = binary.LittleEndian
	if s.BigEndian {
		order = binary.BigEndian
	}
	size := s.Type.Size()

	switch s.Type {
	case U8, U16, U32, U64:
		return scanValues(sc, src, s, lo.(uint64), hi.(uint64), func(b []byte) uint64 {
			return readUint(b, size, order)
		})
	case S8, S16, S32, S64:
		return scanValues(sc, src, s, lo.(int64), hi.(int64), func(b []byte) int64 {
			shift := 64 - 8*size
			return int64(readUint(b, size, order)<<shift) >> shift
		})
	case F32:
		return scanValues(sc, src, s, lo.(float64), hi.(float64), func(b []byte) float64 {
			return float64(math.Float32frombits(order.Uint32(b)))
		})
	}
	return scanValues(sc, src, s, lo.(float64), hi.(float64), func(b []byte) float64 {
		return math.Float64frombits(order.Uint64(b))
	})
}

func readUint(b []byte, size int, order binary.ByteOrder) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	}
	return order.Uint64(b)
}

func scanValues[T number](sc *scanner, src provider.Source, s Value, lo, hi T, decode func(b []byte) T) ([]Occurrence, error) {
	size := uint64(s.Type.Size())
	step := uint64(1)
	if s.Aligned {
		step = size
	}

	rd := sc.reader(src, int(size))
	end := sc.region.End()

	var occs []Occurrence
	for addr := sc.region.Address; addr < end && end-addr >= size; addr += step {
		if err := sc.yield(addr); err != nil {
			return nil, err
		}
		w, err := rd.Window(addr, int(size))
		if err != nil {
			return nil, err
		}
		if uint64(len(w)) < size {
			break
		}

		if v := decode(w); v >= lo && v <= hi {
			occs = append(occs, Occurrence{
				Region:    region.Region{Address: addr, Size: size},
				Decode:    s.Type.decode(),
				BigEndian: s.BigEndian,
			})
		}
	}
	return occs, nil
}
