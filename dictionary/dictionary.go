package dictionary

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/olson-dan/gozork/zcore"
	"github.com/olson-dan/gozork/zstring"
)

// Version 3 dictionary words are 6 z-characters packed into 2 words.
const encodedWordLength = 4

type Header struct {
	separators  []uint8
	entryLength uint8
	count       uint16
}

type Entry struct {
	address     uint16
	encodedWord []uint8
	decodedWord string
}

// Token is one word of a player's input line. Position is the byte offset of
// the token's first character within the line.
type Token struct {
	Text     string
	Position uint8
}

type Dictionary struct {
	Header  Header
	entries []Entry
}

func (d *Dictionary) GetWords() []string {
	var words = make([]string, len(d.entries))
	for i, entry := range d.entries {
		words[i] = entry.decodedWord
	}
	return words
}

func ParseDictionary(core *zcore.Core, baseAddress uint32) (*Dictionary, error) {
	numSeparators, err := core.ReadZByte(baseAddress)
	if err != nil {
		return nil, fmt.Errorf("dictionary header: %w", err)
	}
	separators, err := core.ReadSlice(baseAddress+1, baseAddress+1+uint32(numSeparators))
	if err != nil {
		return nil, fmt.Errorf("dictionary header: %w", err)
	}
	entryLength, err := core.ReadZByte(baseAddress + 1 + uint32(numSeparators))
	if err != nil {
		return nil, fmt.Errorf("dictionary header: %w", err)
	}
	count, err := core.ReadHalfWord(baseAddress + 2 + uint32(numSeparators))
	if err != nil {
		return nil, fmt.Errorf("dictionary header: %w", err)
	}
	if entryLength < encodedWordLength {
		return nil, fmt.Errorf("dictionary entry length %d too short: %w", entryLength, zcore.ErrStoryFormat)
	}

	entryPtr := baseAddress + 4 + uint32(numSeparators)
	var entries = make([]Entry, count)

	for ix := range entries {
		encodedWord, err := core.ReadSlice(entryPtr, entryPtr+encodedWordLength)
		if err != nil {
			return nil, fmt.Errorf("dictionary entry %d: %w", ix, err)
		}
		decodedWord, _, err := zstring.Decode(core, entryPtr)
		if err != nil {
			return nil, fmt.Errorf("dictionary entry %d: %w", ix, err)
		}
		entries[ix] = Entry{
			address:     uint16(entryPtr),
			encodedWord: encodedWord,
			decodedWord: decodedWord,
		}

		entryPtr += uint32(entryLength)
	}

	return &Dictionary{
		Header: Header{
			separators:  separators,
			entryLength: entryLength,
			count:       count,
		},
		entries: entries,
	}, nil
}

// Find returns the byte address of the entry whose encoded form matches, or 0
// when the word is not in the dictionary. Entries are stored sorted by their
// encoded bytes, so the lookup bisects.
func (d *Dictionary) Find(encoded []uint8) uint16 {
	ix, found := slices.BinarySearchFunc(d.entries, encoded, func(entry Entry, target []uint8) int {
		return bytes.Compare(entry.encodedWord, target)
	})
	if !found {
		return 0
	}
	return d.entries[ix].address
}

// FindWord encodes a single word and looks it up. Words longer than 6
// z-characters truncate during encoding, exactly as the compiler truncated
// them when the dictionary was built.
func (d *Dictionary) FindWord(word string) uint16 {
	return d.Find(zstring.Encode([]rune(word)))
}

// Tokenize splits an input line into words. Spaces end a word and are
// discarded. Separator characters (".", "," and the like, listed in the
// dictionary header) end a word and also stand as one character tokens of
// their own.
func (d *Dictionary) Tokenize(line string) []Token {
	var tokens []Token
	start := -1
	flush := func(end int) {
		if start >= 0 {
			tokens = append(tokens, Token{Text: line[start:end], Position: uint8(start)})
			start = -1
		}
	}

	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == ' ':
			flush(i)
		case d.isSeparator(line[i]):
			flush(i)
			tokens = append(tokens, Token{Text: line[i : i+1], Position: uint8(i)})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	flush(len(line))

	return tokens
}

func (d *Dictionary) isSeparator(c uint8) bool {
	for _, separator := range d.Header.separators {
		if c == separator {
			return true
		}
	}
	return false
}
