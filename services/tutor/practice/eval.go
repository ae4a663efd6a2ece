// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package practice

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// EvalArithmetic parses and evaluates a plain arithmetic expression:
// +, -, *, / (and the × ÷ glyphs), unary minus, parentheses, decimals.
//
// Outputs:
//
//	float64 - The value.
//	error - Non-nil if the text is not a well-formed expression.
func EvalArithmetic(expr string) (float64, error) {
	p := &exprParser{input: []rune(expr)}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("practice: unexpected %q at offset %d", p.input[p.pos], p.pos)
	}
	return v, nil
}

// ExtractArithmetic pulls the longest arithmetic-looking span that contains a
// digit out of free text, so "What is 10 - 3?" evaluates as "10 - 3".
// Returns "" when no such span exists.
func ExtractArithmetic(text string) string {
	isExprRune := func(r rune) bool {
		return unicode.IsDigit(r) || strings.ContainsRune("+-*/×÷(). ", r)
	}
	best := ""
	runes := []rune(text)
	for i := 0; i < len(runes); {
		if !isExprRune(runes[i]) {
			i++
			continue
		}
		j := i
		hasDigit := false
		for j < len(runes) && isExprRune(runes[j]) {
			if unicode.IsDigit(runes[j]) {
				hasDigit = true
			}
			j++
		}
		if hasDigit {
			span := strings.TrimSpace(string(runes[i:j]))
			span = strings.Trim(span, ".")
			if len(span) > len(best) {
				best = span
			}
		}
		i = j
	}
	return best
}

// exprParser is a minimal recursive-descent parser. Not exported; the engine
// only ever needs "evaluate or fail".
type exprParser struct {
	input []rune
	pos   int
}

func (p *exprParser) parseExpr() (float64, error) {
	v, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		if p.pos >= len(p.input) {
			return v, nil
		}
		switch p.input[p.pos] {
		case '+':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v += rhs
		case '-':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v -= rhs
		default:
			return v, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	v, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		if p.pos >= len(p.input) {
			return v, nil
		}
		switch p.input[p.pos] {
		case '*', '×':
			p.pos++
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			v *= rhs
		case '/', '÷':
			p.pos++
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("practice: division by zero")
			}
			v /= rhs
		default:
			return v, nil
		}
	}
}

func (p *exprParser) parseFactor() (float64, error) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("practice: unexpected end of expression")
	}
	switch r := p.input[p.pos]; {
	case r == '-':
		p.pos++
		v, err := p.parseFactor()
		return -v, err
	case r == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return 0, fmt.Errorf("practice: missing closing parenthesis")
		}
		p.pos++
		return v, nil
	case unicode.IsDigit(r) || r == '.':
		return p.parseNumber()
	default:
		return 0, fmt.Errorf("practice: unexpected %q", r)
	}
}

func (p *exprParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	v, err := strconv.ParseFloat(string(p.input[start:p.pos]), 64)
	if err != nil {
		return 0, fmt.Errorf("practice: bad number %q", string(p.input[start:p.pos]))
	}
	return v, nil
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}
