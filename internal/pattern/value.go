package pattern

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"unicode/utf16"

	"github.com/jeffwilliams/hexcore/internal/provider"
	"golang.org/x/exp/constraints"
)

var (
	ErrNoValue         = errors.New("pattern has no value of its own")
	ErrUnsupportedSize = errors.New("unsupported value size")
)

// GetValue reads the bytes of p from src and decodes them according to its kind and endian.
// The result is a uint64 for unsigned integers, enums, bitfield fields and pointers (a *big.Int
// for 128 bit integers), an int64 for signed integers, a float64, a bool, a rune for characters
// and a string for strings.
func GetValue(p Pattern, src provider.Source) (interface{}, error) {
	switch p.(type) {
	case *Struct, *Union, *Bitfield, *ArrayStatic, *ArrayDynamic, *Padding:
		return nil, fmt.Errorf("%w: %s", ErrNoValue, kindName(p))
	}

	c := p.Base()
	buf := make([]byte, c.Size)
	if err := provider.ReadFull(src, c.Offset, buf); err != nil {
		return nil, err
	}
	return decode(p, buf)
}

func decode(p Pattern, b []byte) (interface{}, error) {
	c := p.Base()
	size := len(b)

	switch v := p.(type) {
	case *Unsigned, *Enum, *Pointer:
		if size == 16 {
			return bigUnsigned(b, c.Endian), nil
		}
		if size < 1 || size > 8 {
			break
		}
		return fromBytes[uint64](b, c.Endian), nil
	case *Signed:
		if size == 16 {
			return bigSigned(b, c.Endian), nil
		}
		if size < 1 || size > 8 {
			break
		}
		return signExtend[int64](fromBytes[uint64](b, c.Endian), size), nil
	case *Float:
		switch size {
		case 4:
			return float64(math.Float32frombits(c.Endian.order().Uint32(b))), nil
		case 8:
			return math.Float64frombits(c.Endian.order().Uint64(b)), nil
		}
	case *Boolean:
		if size == 1 {
			return b[0] != 0, nil
		}
	case *Character:
		if size == 1 {
			return rune(b[0]), nil
		}
	case *WideCharacter:
		if size == 2 {
			return rune(fromBytes[uint16](b, c.Endian)), nil
		}
	case *String:
		return string(b), nil
	case *WideString:
		units := make([]uint16, size/2)
		for i := range units {
			units[i] = fromBytes[uint16](b[2*i:2*i+2], c.Endian)
		}
		return string(utf16.Decode(units)), nil
	case *BitfieldField:
		if v.BitSize > 64 {
			break
		}
		return extractBits(b, v.BitOffset, v.BitSize, c.Endian), nil
	}
	return nil, fmt.Errorf("%w: %d bytes for %s", ErrUnsupportedSize, size, kindName(p))
}

// fromBytes assembles an integer from b in the given byte order. b must not be wider than T.
func fromBytes[T constraints.Unsigned](b []byte, e Endian) T {
	var v T
	if e == BigEndian {
		for _, x := range b {
			v = v<<8 | T(x)
		}
		return v
	}
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | T(b[i])
	}
	return v
}

// signExtend interprets the low size bytes of u as a two's complement number.
func signExtend[T constraints.Signed](u uint64, size int) T {
	shift := 64 - 8*size
	return T(int64(u<<shift) >> shift)
}

func bigUnsigned(b []byte, e Endian) *big.Int {
	be := make([]byte, len(b))
	copy(be, b)
	if e == LittleEndian {
		for i, j := 0, len(be)-1; i < j; i, j = i+1, j-1 {
			be[i], be[j] = be[j], be[i]
		}
	}
	return new(big.Int).SetBytes(be)
}

func bigSigned(b []byte, e Endian) *big.Int {
	v := bigUnsigned(b, e)
	bits := uint(8 * len(b))
	if v.Bit(int(bits-1)) == 1 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), bits))
	}
	return v
}

// extractBits returns size bits starting offset bits into b. Little endian fields count bits from
// the least significant bit of the first byte; big endian fields from the most significant bit.
func extractBits(b []byte, offset, size uint64, e Endian) uint64 {
	var v uint64
	for i := uint64(0); i < size; i++ {
		var bit byte
		if e == BigEndian {
			q := offset + size - 1 - i
			bit = b[q/8] >> (7 - q%8) & 1
		} else {
			q := offset + i
			bit = b[q/8] >> (q % 8) & 1
		}
		v |= uint64(bit) << i
	}
	return v
}

func kindName(p Pattern) string {
	switch p.(type) {
	case *Unsigned:
		return "unsigned"
	case *Signed:
		return "signed"
	case *Float:
		return "float"
	case *Boolean:
		return "bool"
	case *Character:
		return "char"
	case *WideCharacter:
		return "char16"
	case *String:
		return "string"
	case *WideString:
		return "wide string"
	case *Padding:
		return "padding"
	case *Enum:
		return "enum"
	case *Struct:
		return "struct"
	case *Union:
		return "union"
	case *Bitfield:
		return "bitfield"
	case *BitfieldField:
		return "bitfield field"
	case *ArrayStatic, *ArrayDynamic:
		return "array"
	case *Pointer:
		return "pointer"
	}
	return "pattern"
}
