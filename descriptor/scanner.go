// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package descriptor

import (
	"strings"
)

// scanner is a minimal cursor over a descriptor string. The grammar is small
// enough that a hand-rolled scanner beats a regex chain: wrapper name, then
// an optional bracketed key origin, then the key, then an optional derivation
// suffix. Scanning this way also avoids any pathological backtracking on
// hostile input.
type scanner struct {
	s   string
	pos int
}

func newScanner(s string) *scanner {
	return &scanner{s: s}
}

// done reports whether the cursor has consumed the whole input.
func (sc *scanner) done() bool {
	return sc.pos >= len(sc.s)
}

// peek returns the byte under the cursor without consuming it, or 0 at the
// end of input.
func (sc *scanner) peek() byte {
	if sc.done() {
		return 0
	}

	return sc.s[sc.pos]
}

// accept consumes the next byte if it equals b.
func (sc *scanner) accept(b byte) bool {
	if sc.peek() != b {
		return false
	}

	sc.pos++

	return true
}

// ident consumes and returns a run of ASCII letters, the shape of every
// wrapper function name (wpkh, sh, wsh, sortedmulti, ...).
func (sc *scanner) ident() string {
	start := sc.pos
	for !sc.done() && isLetter(sc.s[sc.pos]) {
		sc.pos++
	}

	return sc.s[start:sc.pos]
}

// until consumes and returns everything up to (but excluding) the first
// occurrence of any byte in stop, or the rest of the input.
func (sc *scanner) until(stop string) string {
	start := sc.pos
	for !sc.done() && !strings.ContainsRune(stop, rune(sc.s[sc.pos])) {
		sc.pos++
	}

	return sc.s[start:sc.pos]
}

// balanced consumes a parenthesized group, assuming the opening '(' has
// already been consumed, and returns the group's contents. Returns false if
// the parens never close.
func (sc *scanner) balanced() (string, bool) {
	start := sc.pos
	depth := 1
	for !sc.done() {
		switch sc.s[sc.pos] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				body := sc.s[start:sc.pos]
				sc.pos++
				return body, true
			}
		}
		sc.pos++
	}

	return "", false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isHexDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// splitTopLevel splits s on commas that sit at paren depth zero. Multisig
// bodies separate key expressions with commas, but a multipath suffix such as
// <0;1> uses semicolons, so a flat split at depth zero is sufficient.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '<':
			depth++
		case ')', ']', '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])

	return parts
}
