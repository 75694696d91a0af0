package jsast

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// IsIdentifier reports whether s is a valid JavaScript identifier name:
// an ID_Start code point, '$' or '_', followed by ID_Continue code points,
// '$' or '_'. Reserved words are accepted, matching property-name rules.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == utf8.RuneError {
			return false
		}
		if i == 0 {
			if !isIdentifierStart(r) {
				return false
			}
			continue
		}
		if !isIdentifierContinue(r) {
			return false
		}
	}
	return true
}

func isIdentifierStart(r rune) bool {
	if r == '$' || r == '_' {
		return true
	}
	if r < utf8.RuneSelf {
		return 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z'
	}
	if unicode.In(r, unicode.Pattern_Syntax, unicode.Pattern_White_Space) {
		return false
	}
	return unicode.In(r, unicode.L, unicode.Nl, unicode.Other_ID_Start)
}

func isIdentifierContinue(r rune) bool {
	if isIdentifierStart(r) {
		return true
	}
	if r < utf8.RuneSelf {
		return '0' <= r && r <= '9'
	}
	if unicode.In(r, unicode.Pattern_Syntax, unicode.Pattern_White_Space) {
		return false
	}
	return unicode.In(r, unicode.Mn, unicode.Mc, unicode.Nd, unicode.Pc, unicode.Other_ID_Continue)
}

// UnquoteString decodes a quoted JavaScript string literal, including its
// escape sequences. It reports false if raw is not a well-formed literal.
func UnquoteString(raw string) (string, bool) {
	if len(raw) < 2 {
		return "", false
	}
	q := raw[0]
	if (q != '"' && q != '\'') || raw[len(raw)-1] != q {
		return "", false
	}
	body := raw[1 : len(raw)-1]
	if !strings.ContainsRune(body, '\\') {
		return body, true
	}

	var units []uint16
	var sb strings.Builder
	flush := func() {
		if len(units) > 0 {
			sb.WriteString(string(utf16.Decode(units)))
			units = units[:0]
		}
	}
	for i := 0; i < len(body); {
		c := body[i]
		if c != '\\' {
			flush()
			r, size := utf8.DecodeRuneInString(body[i:])
			sb.WriteRune(r)
			i += size
			continue
		}
		i++
		if i >= len(body) {
			return "", false
		}
		c = body[i]
		i++
		switch c {
		case 'n':
			flush()
			sb.WriteByte('\n')
		case 't':
			flush()
			sb.WriteByte('\t')
		case 'r':
			flush()
			sb.WriteByte('\r')
		case 'b':
			flush()
			sb.WriteByte('\b')
		case 'f':
			flush()
			sb.WriteByte('\f')
		case 'v':
			flush()
			sb.WriteByte('\v')
		case '\r':
			flush()
			if i < len(body) && body[i] == '\n' {
				i++
			}
		case '\n':
			flush()
		case 'x':
			if i+2 > len(body) {
				return "", false
			}
			v, err := strconv.ParseUint(body[i:i+2], 16, 8)
			if err != nil {
				return "", false
			}
			flush()
			sb.WriteRune(rune(v))
			i += 2
		case 'u':
			if i < len(body) && body[i] == '{' {
				end := strings.IndexByte(body[i:], '}')
				if end < 0 {
					return "", false
				}
				v, err := strconv.ParseUint(body[i+1:i+end], 16, 32)
				if err != nil || v > unicode.MaxRune {
					return "", false
				}
				flush()
				sb.WriteRune(rune(v))
				i += end + 1
				continue
			}
			if i+4 > len(body) {
				return "", false
			}
			v, err := strconv.ParseUint(body[i:i+4], 16, 16)
			if err != nil {
				return "", false
			}
			// Surrogate halves are buffered so escaped pairs decode together.
			units = append(units, uint16(v))
			i += 4
		default:
			flush()
			if c >= '0' && c <= '7' {
				// Legacy octal escape, at most three digits and 0o377.
				j := i
				for j < len(body) && j-i < 2 && body[j] >= '0' && body[j] <= '7' {
					j++
				}
				v, _ := strconv.ParseUint(body[i-1:j], 8, 16)
				if v > 0o377 {
					j--
					v, _ = strconv.ParseUint(body[i-1:j], 8, 16)
				}
				sb.WriteRune(rune(v))
				i = j
				continue
			}
			r, size := utf8.DecodeRuneInString(body[i-1:])
			i += size - 1
			if r == '\u2028' || r == '\u2029' {
				continue
			}
			sb.WriteRune(r)
		}
	}
	flush()
	return sb.String(), true
}

// ParseNumber decodes a JavaScript numeric literal. Bigint literals (with
// the n suffix) are reported with ok false.
func ParseNumber(raw string) (float64, bool) {
	s := strings.ReplaceAll(raw, "_", "")
	if s == "" || strings.HasSuffix(s, "n") {
		return 0, false
	}
	if len(s) > 1 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		digits := s[2:]
		if base == 0 && isOctalDigits(s[1:]) {
			base, digits = 8, s[1:]
		}
		if base != 0 {
			v, ok := new(big.Int).SetString(digits, base)
			if !ok {
				return 0, false
			}
			f, _ := new(big.Float).SetInt(v).Float64()
			return f, true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// ParseFloat reports overflow as an error but still returns ±Inf.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f, true
		}
		return 0, false
	}
	return f, true
}

func isOctalDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '7' {
			return false
		}
	}
	return s != ""
}

// FormatValue renders a literal value the way JavaScript's String()
// conversion would.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		switch {
		case math.IsNaN(v):
			return "NaN"
		case math.IsInf(v, 1):
			return "Infinity"
		case math.IsInf(v, -1):
			return "-Infinity"
		case v == 0:
			return "0"
		case v == math.Trunc(v) && math.Abs(v) < 1e21:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return ""
}
