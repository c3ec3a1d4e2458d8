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

package config

import (
	"errors"
	"fmt"
	"io"
	"unicode"

	"github.com/boxkeep/boxkeep/framework/config/lexer"
)

// Node describes one parsed configuration directive or block:
//
//	name arg0 arg1 {
//	  child0
//	  child1
//	}
type Node struct {
	Name     string
	Args     []string
	Children []Node
	File     string
	Line     int
}

// NodeErr wraps f/args with node's source location, when known.
func NodeErr(node Node, f string, args ...interface{}) error {
	if node.File == "" {
		return fmt.Errorf(f, args...)
	}
	return fmt.Errorf("%s:%d: %s", node.File, node.Line, fmt.Sprintf(f, args...))
}

type treeParser struct {
	lexer.Dispenser
	nesting int
}

func validateNodeName(s string) error {
	if len(s) == 0 {
		return errors.New("empty directive name")
	}
	if unicode.IsDigit([]rune(s)[0]) {
		return errors.New("directive name cannot start with a digit")
	}
	allowedPunct := map[rune]bool{'.': true, '-': true, '_': true}
	for _, ch := range s {
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && !allowedPunct[ch] {
			return errors.New("character not allowed in directive name: " + string(ch))
		}
	}
	return nil
}

// readNode reads the node starting at the token currently under the cursor
// (which must be the node's name). After it returns, the cursor points to
// the last token of the node.
func (ctx *treeParser) readNode() (Node, error) {
	node := Node{File: ctx.File(), Line: ctx.Line()}

	if ctx.Val() == "{" {
		return node, ctx.SyntaxErr("a directive name")
	}
	node.Name = ctx.Val()

	var continueOnLF bool
	for {
		for ctx.NextArg() || (continueOnLF && ctx.NextLine()) {
			continueOnLF = false
			if ctx.Val() == "{" {
				var err error
				node.Children, err = ctx.readNodes()
				if err != nil {
					return node, err
				}
				break
			}
			node.Args = append(node.Args, ctx.Val())
		}

		if len(node.Args) != 0 && node.Args[len(node.Args)-1] == `\` {
			last := len(node.Args) - 1
			node.Args[last] = node.Args[last][:len(node.Args[last])-1]
			if len(node.Args[last]) == 0 {
				node.Args = node.Args[:last]
			}
			continueOnLF = true
			continue
		}
		break
	}

	if err := validateNodeName(node.Name); err != nil {
		return node, err
	}

	return node, nil
}

// readNodes reads the nodes of the block whose opening brace is currently
// under the cursor.
func (ctx *treeParser) readNodes() ([]Node, error) {
	res := []Node{}

	if ctx.nesting > 255 {
		return res, ctx.Err("nesting limit reached")
	}
	ctx.nesting++

	var requireNewLine bool
	for {
		if requireNewLine {
			if !ctx.NextLine() {
				if !ctx.Next() {
					return res, nil
				}
				return res, ctx.Err("newline is required after closing brace")
			}
		} else if !ctx.Next() {
			break
		}

		if ctx.Val() == "}" {
			ctx.nesting--
			if ctx.nesting < 0 {
				return res, ctx.Err("unexpected }")
			}
			break
		}

		node, err := ctx.readNode()
		if err != nil {
			return res, err
		}
		requireNewLine = true

		shouldStop := false
		if len(node.Args) != 0 && node.Args[len(node.Args)-1] == "}" {
			ctx.nesting--
			if ctx.nesting < 0 {
				return res, ctx.Err("unexpected }")
			}
			node.Args = node.Args[:len(node.Args)-1]
			shouldStop = true
		}

		res = append(res, node)
		if shouldStop {
			break
		}
	}

	return res, nil
}

// Read parses the directive tree rooted in r. Unlike maddy's cfgparser, it
// does not support macros, snippets, imports or environment-variable
// expansion — boxkeepctl's config is a single flat file naming partitions
// and directory paths, not a multi-module server configuration spanning
// included files.
func Read(r io.Reader, location string) ([]Node, error) {
	ctx := treeParser{Dispenser: lexer.NewDispenser(location, r), nesting: -1}
	if err := ctx.LexErr(); err != nil {
		return nil, err
	}

	nodes, err := ctx.readNodes()
	if err != nil {
		return nodes, err
	}
	if ctx.nesting > 0 {
		return nodes, ctx.Err("unexpected EOF when looking for }")
	}
	return nodes, nil
}
