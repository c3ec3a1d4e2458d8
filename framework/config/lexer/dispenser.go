/*
boxkeep mailbox registry and storage engine.
Copyright © 2024 boxkeep contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package lexer

import (
	"fmt"
	"io"
)

// Dispenser wraps a pre-lexed token stream with a cursor, giving the tree
// parser in framework/config a line-aware way to walk it: Next moves to any
// following token, NextArg only to one still on the current logical line.
type Dispenser struct {
	file   string
	tokens []Token
	cursor int
	err    error
}

// NewDispenser lexes the entirety of r up front and returns a Dispenser
// positioned before the first token.
func NewDispenser(file string, r io.Reader) Dispenser {
	tokens, err := allTokens(r)
	return Dispenser{file: file, tokens: tokens, cursor: -1, err: err}
}

// Next advances the cursor to the next token, wherever it falls. It returns
// false once the stream is exhausted.
func (d *Dispenser) Next() bool {
	if d.cursor+1 >= len(d.tokens) {
		return false
	}
	d.cursor++
	return true
}

// NextLine advances the cursor to the next token unconditionally; it exists
// as a distinct name from Next so call sites that are deliberately crossing
// a line boundary (backslash continuation) read as such.
func (d *Dispenser) NextLine() bool {
	return d.Next()
}

// NextArg advances the cursor only if the following token is still on the
// same source line as the current one — the boundary between a node's
// trailing argument and the next logical line.
func (d *Dispenser) NextArg() bool {
	if d.cursor < 0 {
		return d.Next()
	}
	if d.cursor+1 >= len(d.tokens) {
		return false
	}
	if d.tokens[d.cursor+1].Line != d.tokens[d.cursor].Line {
		return false
	}
	d.cursor++
	return true
}

// Val returns the text of the token currently under the cursor.
func (d *Dispenser) Val() string {
	if d.cursor < 0 || d.cursor >= len(d.tokens) {
		return ""
	}
	return d.tokens[d.cursor].Text
}

// File returns the source name passed to NewDispenser.
func (d *Dispenser) File() string {
	return d.file
}

// Line returns the line number of the token currently under the cursor.
func (d *Dispenser) Line() int {
	if d.cursor < 0 || d.cursor >= len(d.tokens) {
		return 0
	}
	return d.tokens[d.cursor].Line
}

// LexErr returns the lexing error recorded by NewDispenser, if any.
func (d *Dispenser) LexErr() error {
	return d.err
}

// Err wraps msg with the current file:line location.
func (d *Dispenser) Err(msg string) error {
	if d.file == "" {
		return fmt.Errorf("%s", msg)
	}
	return fmt.Errorf("%s:%d: %s", d.file, d.Line(), msg)
}

// SyntaxErr reports that the token under the cursor was unexpected while
// parsing expected.
func (d *Dispenser) SyntaxErr(expected string) error {
	return d.Err(fmt.Sprintf("unexpected token %q, expected %s", d.Val(), expected))
}
