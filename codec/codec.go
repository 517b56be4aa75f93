package codec

import (
	"fmt"

	"github.com/ardnew/softreg/pkg"
)

// MaxWidth is the widest field or word the codec handles.
const MaxWidth = 64

// Field is one value of a packed record together with its bit width.
type Field struct {
	Value uint64
	Width uint
}

func mask(n uint) uint64 { return 1<<n - 1 }

func checkWordWidth(w uint) error {
	if w == 0 || w > MaxWidth {
		return fmt.Errorf("%w: word width %d", pkg.ErrInvalidValue, w)
	}
	return nil
}

func checkWidths(widths []uint) (uint, error) {
	var total uint
	for i, n := range widths {
		if n == 0 || n > MaxWidth {
			return 0, fmt.Errorf("%w: field %d has width %d", pkg.ErrInvalidValue, i, n)
		}
		total += n
	}
	return total, nil
}

// WordCount returns the number of words of wordWidth bits that a record of
// the given field widths occupies.
func WordCount(widths []uint, wordWidth uint) (int, error) {
	if err := checkWordWidth(wordWidth); err != nil {
		return 0, err
	}
	total, err := checkWidths(widths)
	if err != nil {
		return 0, err
	}
	return int((total + wordWidth - 1) / wordWidth), nil
}

// Pack serializes fields MSB-first into words of wordWidth bits.
//
// The first field occupies the most significant bits of the first word and
// each following field continues directly below it, spanning word
// boundaries as needed. The last word is zero-padded in its low bits.
func Pack(fields []Field, wordWidth uint) ([]uint64, error) {
	if err := checkWordWidth(wordWidth); err != nil {
		return nil, err
	}
	widths := make([]uint, len(fields))
	for i, f := range fields {
		widths[i] = f.Width
	}
	total, err := checkWidths(widths)
	if err != nil {
		return nil, err
	}
	for i, f := range fields {
		if f.Value&^mask(f.Width) != 0 {
			return nil, fmt.Errorf("%w: field %d value 0x%x exceeds %d bits",
				pkg.ErrInvalidValue, i, f.Value, f.Width)
		}
	}

	words := make([]uint64, 0, (total+wordWidth-1)/wordWidth)
	var acc uint64
	room := wordWidth
	for _, f := range fields {
		rem, need := f.Value, f.Width
		for need > 0 {
			if need < room {
				acc |= rem << (room - need)
				room -= need
				break
			}
			// Top room bits of the field complete the current word
			acc |= rem >> (need - room)
			rem &= mask(need - room)
			need -= room
			words = append(words, acc)
			acc, room = 0, wordWidth
		}
	}
	if room < wordWidth {
		words = append(words, acc)
	}
	return words, nil
}

// Unpack extracts values of the given widths from words produced by Pack.
// It fails with [pkg.ErrTruncatedRecord] before extracting anything when
// words is shorter than the widths require. Padding and any extra words
// are ignored.
func Unpack(words []uint64, widths []uint, wordWidth uint) ([]uint64, error) {
	n, err := WordCount(widths, wordWidth)
	if err != nil {
		return nil, err
	}
	if len(words) < n {
		return nil, fmt.Errorf("%w: have %d words, need %d", pkg.ErrTruncatedRecord, len(words), n)
	}

	values := make([]uint64, len(widths))
	idx, room := 0, wordWidth
	for i, width := range widths {
		var v uint64
		need := width
		for need > 0 {
			word := words[idx] & mask(wordWidth)
			if need < room {
				v |= (word >> (room - need)) & mask(need)
				room -= need
				break
			}
			v |= (word & mask(room)) << (need - room)
			need -= room
			idx++
			room = wordWidth
		}
		values[i] = v
	}
	return values, nil
}
