package zstring

// The default extended character table, codes 155-223. Version 5 story files
// can replace this through the extension table; version 3 files cannot.
var defaultExtendedChars = map[rune]uint16{
	'ä': 155,
	'ö': 156,
	'ü': 157,
	'Ä': 158,
	'Ö': 159,
	'Ü': 160,
	'ß': 161,
	'»': 162,
	'«': 163,
	'ë': 164,
	'ï': 165,
	'ÿ': 166,
	'Ë': 167,
	'Ï': 168,
	'á': 169,
	'é': 170,
	'í': 171,
	'ó': 172,
	'ú': 173,
	'ý': 174,
	'Á': 175,
	'É': 176,
	'Í': 177,
	'Ó': 178,
	'Ú': 179,
	'Ý': 180,
	'à': 181,
	'è': 182,
	'ì': 183,
	'ò': 184,
	'ù': 185,
	'À': 186,
	'È': 187,
	'Ì': 188,
	'Ò': 189,
	'Ù': 190,
	'â': 191,
	'ê': 192,
	'î': 193,
	'ô': 194,
	'û': 195,
	'Â': 196,
	'Ê': 197,
	'Î': 198,
	'Ô': 199,
	'Û': 200,
	'å': 201,
	'Å': 202,
	'ø': 203,
	'Ø': 204,
	'ã': 205,
	'ñ': 206,
	'õ': 207,
	'Ã': 208,
	'Ñ': 209,
	'Õ': 210,
	'æ': 211,
	'Æ': 212,
	'ç': 213,
	'Ç': 214,
	'þ': 215,
	'ð': 216,
	'Þ': 217,
	'Ð': 218,
	'£': 219,
	'œ': 220,
	'Œ': 221,
	'¡': 222,
	'¿': 223,
}

var extendedCharsByCode = make(map[uint16]rune, len(defaultExtendedChars))

func init() {
	for r, code := range defaultExtendedChars {
		extendedCharsByCode[code] = r
	}
}

// ZsciiToUnicode maps an output ZSCII code to text. Codes with no defined
// glyph report false and are dropped by callers rather than erroring; the only
// non-printable code stories actually emit is newline.
func ZsciiToUnicode(zscii uint16) (rune, bool) {
	switch {
	case zscii == 13:
		return '\n', true
	case zscii >= 32 && zscii <= 126:
		return rune(zscii), true
	default:
		r, ok := extendedCharsByCode[zscii]
		return r, ok
	}
}

func unicodeToZscii(r rune) (uint8, bool) {
	switch {
	case r == '\n':
		return 13, true
	case r >= 32 && r <= 126:
		return uint8(r), true
	default:
		if code, ok := defaultExtendedChars[r]; ok {
			return uint8(code), true
		}
		return 0, false
	}
}
