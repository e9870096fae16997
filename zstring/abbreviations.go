package zstring

import (
	"fmt"

	"github.com/olson-dan/gozork/zcore"
)

// findAbbreviation expands abbreviation x of block z (1-3). The table holds 96
// word addresses; the target is itself an encoded string, which may not
// reference further abbreviations.
func findAbbreviation(core *zcore.Core, z uint8, x uint8) (string, error) {
	abbrIx := 32*uint16(z-1) + uint16(x)
	wordAddr, err := core.ReadHalfWord(uint32(core.AbbreviationTableBase) + 2*uint32(abbrIx))
	if err != nil {
		return "", fmt.Errorf("abbreviation %d: %w", abbrIx, err)
	}

	str, _, err := decode(core, 2*uint32(wordAddr), true)
	return str, err
}
