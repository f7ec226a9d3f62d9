/*
Copyright 2026 The SkyServ Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sqlparser

import (
	"bytes"
	"strings"

	"skyserv.io/skyserv/go/sky/skyerrors"
)

const eofChar = 0x100

// Token types returned by Scan. Single-character tokens (parens, commas,
// operators) are returned as their character value.
const (
	LEX_ERROR = 57346 + iota
	ID
	STRING
	NUMBER
	LE // <=
	GE // >=
	NE // != or <>
	// Keywords.
	SELECT
	DISTINCT
	FROM
	AS
	JOIN
	INNER
	LEFT
	RIGHT
	OUTER
	CROSS
	NATURAL
	USING
	ON
	WHERE
	AND
	OR
	NOT
	BETWEEN
	IN
	IS
	LIKE
	NULL
	GROUP
	BY
	HAVING
	ORDER
	ASC
	DESC
	LIMIT
	OFFSET
)

var keywords = map[string]int{
	"select":   SELECT,
	"distinct": DISTINCT,
	"from":     FROM,
	"as":       AS,
	"join":     JOIN,
	"inner":    INNER,
	"left":     LEFT,
	"right":    RIGHT,
	"outer":    OUTER,
	"cross":    CROSS,
	"natural":  NATURAL,
	"using":    USING,
	"on":       ON,
	"where":    WHERE,
	"and":      AND,
	"or":       OR,
	"not":      NOT,
	"between":  BETWEEN,
	"in":       IN,
	"is":       IS,
	"like":     LIKE,
	"null":     NULL,
	"group":    GROUP,
	"by":       BY,
	"having":   HAVING,
	"order":    ORDER,
	"asc":      ASC,
	"desc":     DESC,
	"limit":    LIMIT,
	"offset":   OFFSET,
}

func lowered(s string) string {
	return strings.ToLower(s)
}

// Tokenizer is the struct used to generate SQL tokens for the parser.
type Tokenizer struct {
	buf      []byte
	bufPos   int
	lastChar uint16

	// Position is the byte offset of the last scanned token, used in
	// error messages.
	Position int
}

// NewStringTokenizer creates a new Tokenizer for the sql string.
func NewStringTokenizer(sql string) *Tokenizer {
	tkn := &Tokenizer{buf: []byte(sql)}
	tkn.next()
	return tkn
}

// Scan returns the next token and, for identifiers, strings and numbers,
// its value.
func (tkn *Tokenizer) Scan() (int, []byte) {
	tkn.skipBlank()
	tkn.Position = tkn.bufPos - 1

	switch ch := tkn.lastChar; {
	case isLetter(ch):
		return tkn.scanIdentifier()
	case isDigit(ch):
		return tkn.scanNumber(false)
	default:
		tkn.next()
		switch ch {
		case eofChar:
			return 0, nil
		case '(', ')', ',', '*', '+', '-', '/', '%', '.':
			// '.' starting a number like .5
			if ch == '.' && isDigit(tkn.lastChar) {
				return tkn.scanNumber(true)
			}
			return int(ch), nil
		case '=':
			return int(ch), nil
		case '<':
			switch tkn.lastChar {
			case '=':
				tkn.next()
				return LE, nil
			case '>':
				tkn.next()
				return NE, nil
			}
			return int(ch), nil
		case '>':
			if tkn.lastChar == '=' {
				tkn.next()
				return GE, nil
			}
			return int(ch), nil
		case '!':
			if tkn.lastChar == '=' {
				tkn.next()
				return NE, nil
			}
			return LEX_ERROR, []byte("!")
		case '\'', '"':
			return tkn.scanString(ch)
		case '`':
			return tkn.scanLiteralIdentifier()
		default:
			return LEX_ERROR, []byte(string(rune(ch)))
		}
	}
}

func (tkn *Tokenizer) skipBlank() {
	for tkn.lastChar == ' ' || tkn.lastChar == '\n' || tkn.lastChar == '\r' || tkn.lastChar == '\t' || tkn.lastChar == ';' {
		tkn.next()
	}
}

func (tkn *Tokenizer) scanIdentifier() (int, []byte) {
	buffer := &bytes.Buffer{}
	for isLetter(tkn.lastChar) || isDigit(tkn.lastChar) {
		buffer.WriteByte(byte(tkn.lastChar))
		tkn.next()
	}
	if keywordID, found := keywords[lowered(buffer.String())]; found {
		return keywordID, buffer.Bytes()
	}
	return ID, buffer.Bytes()
}

func (tkn *Tokenizer) scanLiteralIdentifier() (int, []byte) {
	buffer := &bytes.Buffer{}
	for tkn.lastChar != '`' {
		if tkn.lastChar == eofChar {
			return LEX_ERROR, buffer.Bytes()
		}
		buffer.WriteByte(byte(tkn.lastChar))
		tkn.next()
	}
	tkn.next()
	return ID, buffer.Bytes()
}

func (tkn *Tokenizer) scanNumber(seenDecimalPoint bool) (int, []byte) {
	buffer := &bytes.Buffer{}
	if seenDecimalPoint {
		buffer.WriteByte('.')
	}
	for isDigit(tkn.lastChar) {
		buffer.WriteByte(byte(tkn.lastChar))
		tkn.next()
	}
	if !seenDecimalPoint && tkn.lastChar == '.' {
		buffer.WriteByte('.')
		tkn.next()
		for isDigit(tkn.lastChar) {
			buffer.WriteByte(byte(tkn.lastChar))
			tkn.next()
		}
	}
	if tkn.lastChar == 'e' || tkn.lastChar == 'E' {
		buffer.WriteByte(byte(tkn.lastChar))
		tkn.next()
		if tkn.lastChar == '+' || tkn.lastChar == '-' {
			buffer.WriteByte(byte(tkn.lastChar))
			tkn.next()
		}
		if !isDigit(tkn.lastChar) {
			return LEX_ERROR, buffer.Bytes()
		}
		for isDigit(tkn.lastChar) {
			buffer.WriteByte(byte(tkn.lastChar))
			tkn.next()
		}
	}
	return NUMBER, buffer.Bytes()
}

func (tkn *Tokenizer) scanString(delim uint16) (int, []byte) {
	buffer := &bytes.Buffer{}
	for {
		ch := tkn.lastChar
		tkn.next()
		if ch == delim {
			if tkn.lastChar == delim {
				// Doubled delimiter is an escaped delimiter.
				buffer.WriteByte(byte(delim))
				tkn.next()
				continue
			}
			break
		}
		if ch == '\\' {
			if tkn.lastChar == eofChar {
				return LEX_ERROR, buffer.Bytes()
			}
			buffer.WriteByte(byte(tkn.lastChar))
			tkn.next()
			continue
		}
		if ch == eofChar {
			return LEX_ERROR, buffer.Bytes()
		}
		buffer.WriteByte(byte(ch))
	}
	return STRING, buffer.Bytes()
}

func (tkn *Tokenizer) next() {
	if tkn.bufPos >= len(tkn.buf) {
		tkn.lastChar = eofChar
		tkn.bufPos++
		return
	}
	tkn.lastChar = uint16(tkn.buf[tkn.bufPos])
	tkn.bufPos++
}

func isLetter(ch uint16) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_' || ch == '$'
}

func isDigit(ch uint16) bool {
	return '0' <= ch && ch <= '9'
}

// errorAt builds a parse error carrying the token position.
func (tkn *Tokenizer) errorAt(format string, args ...any) error {
	return skyerrors.Wrapf(
		skyerrors.Errorf(skyerrors.InvalidArgument, format, args...),
		"syntax error at position %d", tkn.Position+1)
}
