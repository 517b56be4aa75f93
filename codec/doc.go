// Package codec packs records of arbitrary-width fields into sequences of
// fixed-width register words.
//
// Fields are laid out MSB-first: the first field starts at the most
// significant bit of the first word, and each field continues where the
// previous one ended, crossing word boundaries freely. A record of total
// width B occupies ceil(B/W) words of W bits; the low bits of the final
// word are zero padding and carry no meaning.
//
// Example with W=32:
//
//	words, _ := codec.Pack([]codec.Field{
//	    {Value: 0xAAAAAAAAAAAA, Width: 48},
//	    {Value: 0xBBBBBBBBBBBB, Width: 48},
//	    {Value: 0xCCCC, Width: 16},
//	}, 32)
//	// words == [0xAAAAAAAA 0xAAAABBBB 0xBBBBBBBB 0xCCCC0000]
//
// A [Layout] names the fields of a record format once so drivers encode and
// decode it from the same definition.
package codec
