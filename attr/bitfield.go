package attr

import "fmt"

// MaxBits is the capacity of a packed word.
const MaxBits = 64

// BitLayout hands out non-overlapping fields of a 64-bit word. Fields are
// allocated back to back, so two fields of one layout can never share a bit.
//
// Layouts are meant to be built in package-level var blocks; a layout that
// does not fit panics during package initialisation. Algorithms that know
// their widths as constants can additionally guard the total at compile
// time:
//
//	const _ uint8 = MaxBits - (flagBits + stageBits)
type BitLayout struct {
	name   string
	used   uint
	fields []BitField
}

// BitField is a contiguous run of bits inside a packed word.
type BitField struct {
	name  string
	shift uint
	width uint
}

// NewBitLayout starts an empty layout.
func NewBitLayout(name string) *BitLayout {
	return &BitLayout{name: name}
}

// Field allocates the next width bits.
func (l *BitLayout) Field(name string, width uint) BitField {
	if width == 0 {
		panic(fmt.Sprintf("bit layout %s: field %s has zero width", l.name, name))
	}
	if l.used+width > MaxBits {
		panic(fmt.Sprintf("bit layout %s: field %s (%d bits) overflows %d-bit word at offset %d", l.name, name, width, MaxBits, l.used))
	}
	f := BitField{name: name, shift: l.used, width: width}
	l.used += width
	l.fields = append(l.fields, f)
	return f
}

// Flag allocates a single-bit field.
func (l *BitLayout) Flag(name string) BitField { return l.Field(name, 1) }

// Bits returns the number of bits allocated so far.
func (l *BitLayout) Bits() uint { return l.used }

// Fields returns the allocated fields in order.
func (l *BitLayout) Fields() []BitField {
	return append([]BitField(nil), l.fields...)
}

// Name returns the field name.
func (f BitField) Name() string { return f.name }

// Width returns the field width in bits.
func (f BitField) Width() uint { return f.width }

// Max returns the largest value the field can hold.
func (f BitField) Max() uint64 {
	if f.width >= MaxBits {
		return ^uint64(0)
	}
	return (uint64(1) << f.width) - 1
}

func (f BitField) mask() uint64 { return f.Max() << f.shift }

// Get extracts the field from word.
func (f BitField) Get(word uint64) uint64 {
	return (word & f.mask()) >> f.shift
}

// Set returns word with the field replaced by v. Values wider than the
// field panic rather than bleeding into neighbouring fields.
func (f BitField) Set(word, v uint64) uint64 {
	if v > f.Max() {
		panic(fmt.Sprintf("bit field %s: value %d exceeds %d-bit width", f.name, v, f.width))
	}
	return (word &^ f.mask()) | (v << f.shift)
}

// Bool reads a field as a flag.
func (f BitField) Bool(word uint64) bool { return f.Get(word) != 0 }

// SetBool writes a flag.
func (f BitField) SetBool(word uint64, b bool) uint64 {
	if b {
		return f.Set(word, 1)
	}
	return f.Set(word, 0)
}
