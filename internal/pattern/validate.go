package pattern

import (
	"fmt"
	"math/bits"

	"github.com/jeffwilliams/hexcore/internal/errs"
)

// ValidationError describes one pattern that breaks a layout rule.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks the trees under roots against a provider of the given size. Every pattern below
// a root must end within the provider, unions must be as large as their largest member, bitfields
// as large as their bits rounded up to bytes, and static arrays as large as their entries. All
// violations are reported.
func Validate(roots []Pattern, size uint64) error {
	e := errs.New()
	for _, r := range roots {
		validate(r, name(r), false, size, &e)
	}
	return e.NilIfEmpty()
}

func name(p Pattern) string {
	if n := p.Base().Name(); n != "" {
		return n
	}
	return "<" + kindName(p) + ">"
}

func validate(p Pattern, path string, child bool, size uint64, e *errs.Errors) {
	c := p.Base()
	fail := func(format string, args ...interface{}) {
		e.Add(&ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if child {
		end, carry := bits.Add64(c.Offset, c.Size, 0)
		if carry != 0 {
			fail("region at 0x%X of size %d wraps around", c.Offset, c.Size)
		} else if end > size {
			fail("ends at 0x%X, past the end of the data at 0x%X", end, size)
		}
	}

	sub := func(m Pattern) {
		validate(m, path+"."+name(m), true, size, e)
	}

	switch v := p.(type) {
	case *Struct:
		for _, m := range v.Members {
			sub(m)
		}
	case *Union:
		var largest uint64
		for _, m := range v.Members {
			if m.Base().Offset != c.Offset {
				fail("member %s is at 0x%X, not at the union's offset 0x%X", name(m), m.Base().Offset, c.Offset)
			}
			largest = max(largest, m.Base().Size)
			sub(m)
		}
		if c.Size != largest {
			fail("size is %d but the largest member is %d bytes", c.Size, largest)
		}
	case *Bitfield:
		var total uint64
		for _, f := range v.Fields {
			total += f.BitSize
			sub(f)
		}
		if want := (total + 7) / 8; c.Size != want {
			fail("size is %d but its fields hold %d bits", c.Size, total)
		}
	case *ArrayStatic:
		if hi, lo := bits.Mul64(v.Count, v.Template.Base().Size); hi != 0 || c.Size != lo {
			fail("size is %d but it holds %d entries of %d bytes", c.Size, v.Count, v.Template.Base().Size)
		}
	case *ArrayDynamic:
		for i, en := range v.Entries {
			validate(en, fmt.Sprintf("%s[%d]", path, i), true, size, e)
		}
	case *Pointer:
		if v.Pointee != nil {
			validate(v.Pointee, "*"+path, true, size, e)
		}
	}
}
