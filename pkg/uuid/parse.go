package uuid

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalid = errors.New("invalid uuid")

type ParseError struct {
	Input  string
	Reason string
}

func (pe *ParseError) Error() string {
	return fmt.Sprintf("parse `%s`: %s", pe.Input, pe.Reason)
}

func (pe *ParseError) Is(target error) bool {
	return target == ErrInvalid
}

// Parse reads the canonical form, optionally wrapped in braces or prefixed by
// `urn:uuid:`, or the 32 hexadecimal digits without hyphens. Hex is case
// insensitive.
func Parse(value string) (UUID, error) {
	content := value

	switch len(content) {
	case 36 + 9:
		if !strings.EqualFold(content[:9], "urn:uuid:") {
			return Nil, &ParseError{Input: value, Reason: "invalid urn prefix"}
		}

		content = content[9:]

	case 36 + 2:
		if content[0] != '{' || content[len(content)-1] != '}' {
			return Nil, &ParseError{Input: value, Reason: "invalid braces"}
		}

		content = content[1 : len(content)-1]

	case 32:
		return parseHex(value, content)

	case 36:

	default:
		return Nil, &ParseError{Input: value, Reason: fmt.Sprintf("invalid length %d", len(value))}
	}

	if content[8] != '-' || content[13] != '-' || content[18] != '-' || content[23] != '-' {
		return Nil, &ParseError{Input: value, Reason: "invalid separators"}
	}

	var output UUID

	for index, position := range [16]int{0, 2, 4, 6, 9, 11, 14, 16, 19, 21, 24, 26, 28, 30, 32, 34} {
		octet, ok := decodeOctet(content[position], content[position+1])
		if !ok {
			return Nil, &ParseError{Input: value, Reason: fmt.Sprintf("invalid hex at position %d", position)}
		}

		output[index] = octet
	}

	return output, nil
}

func parseHex(value, content string) (UUID, error) {
	var output UUID

	for index := range output {
		octet, ok := decodeOctet(content[index*2], content[index*2+1])
		if !ok {
			return Nil, &ParseError{Input: value, Reason: fmt.Sprintf("invalid hex at position %d", index*2)}
		}

		output[index] = octet
	}

	return output, nil
}

// MustParse panics if value is not a valid UUID. Reserved for constants.
func MustParse(value string) UUID {
	output, err := Parse(value)
	if err != nil {
		panic(err)
	}

	return output
}

func decodeOctet(high, low byte) (byte, bool) {
	highValue, ok := decodeNibble(high)
	if !ok {
		return 0, false
	}

	lowValue, ok := decodeNibble(low)
	if !ok {
		return 0, false
	}

	return highValue<<4 | lowValue, true
}

func decodeNibble(char byte) (byte, bool) {
	switch {
	case '0' <= char && char <= '9':
		return char - '0', true
	case 'a' <= char && char <= 'f':
		return char - 'a' + 10, true
	case 'A' <= char && char <= 'F':
		return char - 'A' + 10, true
	default:
		return 0, false
	}
}
