package zstring

import (
	"fmt"
	"slices"

	"github.com/olson-dan/gozork/zcore"
)

type alphabet int

const (
	a0 alphabet = 0 // lower case
	a1 alphabet = 1 // upper case
	a2 alphabet = 2 // punctuation and digits
)

// Version 3 alphabet tables. Custom alphabets only exist from version 5 so
// these are fixed. Z-character 6 of a2 is the ZSCII escape, hence the table
// for a2 starting one character later than the others.
var alphabetTable = [3][]rune{
	{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o', 'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z'},
	{'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O', 'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z'},
	{'\n', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '.', ',', '!', '?', '_', '#', '\'', '"', '/', '\\', '-', ':', '(', ')'},
}

const (
	shiftA1 = 4
	shiftA2 = 5
	// Encoded words are padded out with the a2 shift, which decodes to nothing
	// on its own.
	padChar = 5
	// A version 3 dictionary word is 6 z-characters in 2 half words.
	encodedWordChars = 6
)

// Decode reads the z-string starting at address and returns its text plus the
// number of bytes consumed. A half word with the high bit set terminates the
// string; running off the end of memory first is a corruption error.
func Decode(core *zcore.Core, address uint32) (string, uint32, error) {
	return decode(core, address, false)
}

func decode(core *zcore.Core, address uint32, inAbbreviation bool) (string, uint32, error) {
	bytesRead := uint32(0)
	ptr := address

	// First convert the memory addresses into a stream of 5 bit z-characters
	// terminating at the appropriate time.
	var zchrStream []uint8
	for {
		halfWord, err := core.ReadHalfWord(ptr)
		if err != nil {
			return "", 0, fmt.Errorf("unterminated z-string at 0x%x: %w", address, err)
		}
		bytesRead += 2
		ptr += 2

		zchrStream = append(zchrStream, uint8((halfWord>>10)&0b11111))
		zchrStream = append(zchrStream, uint8((halfWord>>5)&0b11111))
		zchrStream = append(zchrStream, uint8(halfWord&0b11111))

		if halfWord>>15 == 1 {
			break
		}
	}

	currentAlphabet := a0
	nextAlphabet := a0

	var chrStream []rune
zchrLoop:
	for i := 0; i < len(zchrStream); i++ {
		zchr := zchrStream[i]
		currentAlphabet = nextAlphabet
		nextAlphabet = a0

		switch {
		case zchr == 0:
			chrStream = append(chrStream, ' ')
		case zchr <= 3: // abbreviation selector
			if i+1 >= len(zchrStream) {
				break zchrLoop // truncation cut the sequence short
			}
			if inAbbreviation {
				return "", 0, fmt.Errorf("abbreviation at 0x%x references another abbreviation: %w", address, zcore.ErrStoryFormat)
			}
			abbr, err := findAbbreviation(core, zchr, zchrStream[i+1])
			if err != nil {
				return "", 0, err
			}
			chrStream = append(chrStream, []rune(abbr)...)
			i++
		case zchr == shiftA1:
			nextAlphabet = a1
		case zchr == shiftA2:
			nextAlphabet = a2
		case zchr == 6 && currentAlphabet == a2: // 10 bit ZSCII escape
			if i+2 >= len(zchrStream) {
				break zchrLoop
			}
			zscii := uint16(zchrStream[i+1])<<5 | uint16(zchrStream[i+2])
			if r, ok := ZsciiToUnicode(zscii); ok {
				chrStream = append(chrStream, r)
			}
			i += 2
		default:
			if currentAlphabet == a2 {
				chrStream = append(chrStream, alphabetTable[a2][zchr-7])
			} else {
				chrStream = append(chrStream, alphabetTable[currentAlphabet][zchr-6])
			}
		}
	}

	return string(chrStream), bytesRead, nil
}

// Encode translates text to the fixed-length encoded form used by dictionary
// entries: 6 z-characters packed into 2 half words, padded and truncated as
// required. This is the inverse of Decode for any text that survives the
// truncation.
func Encode(s []rune) []uint8 {
	zchrs := make([]uint8, 0, encodedWordChars)

	for _, chr := range s {
		if chr == ' ' { // SPACE is 0 regardless of alphabet
			zchrs = append(zchrs, 0)
			continue
		}

		if ix := slices.Index(alphabetTable[a0], chr); ix >= 0 {
			zchrs = append(zchrs, 6+uint8(ix))
		} else if ix := slices.Index(alphabetTable[a1], chr); ix >= 0 {
			zchrs = append(zchrs, shiftA1, 6+uint8(ix))
		} else if ix := slices.Index(alphabetTable[a2], chr); ix >= 0 {
			zchrs = append(zchrs, shiftA2, 7+uint8(ix))
		} else if zscii, ok := unicodeToZscii(chr); ok {
			zchrs = append(zchrs, shiftA2, 6, zscii>>5, zscii&0b1_1111)
		}
		// Characters with no ZSCII form are dropped entirely.
	}

	for len(zchrs) < encodedWordChars {
		zchrs = append(zchrs, padChar)
	}
	zchrs = zchrs[:encodedWordChars]

	bytes := make([]uint8, 0, 4)
	chunks := slices.Collect(slices.Chunk(zchrs, 3))
	for ix, chunk := range chunks {
		u16 := uint16(chunk[2])&0b1_1111 | uint16(chunk[1]&0b1_1111)<<5 | uint16(chunk[0]&0b1_1111)<<10
		if ix == len(chunks)-1 {
			u16 |= 0b1000_0000_0000_0000
		}

		bytes = append(bytes, uint8(u16>>8), uint8(u16))
	}

	return bytes
}
