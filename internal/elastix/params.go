// Package elastix reads elastix parameter files: parenthesized
// "(Name value...)" entries with "//" comments.
package elastix

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is returned for an entry that cannot be parsed.
var ErrSyntax = errors.New("elastix parameter syntax error")

// Value is one parameter value. Quoted reports whether it was a string literal.
type Value struct {
	Text   string
	Quoted bool
}

// Float parses the value as a number.
func (v Value) Float() (float64, error) {
	if v.Quoted {
		return 0, fmt.Errorf("%q is a string", v.Text)
	}
	return strconv.ParseFloat(v.Text, 64)
}

func (v Value) String() string {
	if v.Quoted {
		return strconv.Quote(v.Text)
	}
	return v.Text
}

// Parameter is one "(Name values...)" entry.
type Parameter struct {
	Name   string
	Values []Value
	Line   int
}

// Parameters is a parsed parameter file in file order.
type Parameters []Parameter

// Get returns the last entry named name; elastix lets later entries win.
func (ps Parameters) Get(name string) (Parameter, bool) {
	for i := len(ps) - 1; i >= 0; i-- {
		if ps[i].Name == name {
			return ps[i], true
		}
	}
	return Parameter{}, false
}

// String returns the first value of name, or "".
func (ps Parameters) String(name string) string {
	p, ok := ps.Get(name)
	if !ok || len(p.Values) == 0 {
		return ""
	}
	return p.Values[0].Text
}

// Transform returns the Transform parameter, e.g. "EulerTransform".
func (ps Parameters) Transform() string { return ps.String("Transform") }

// Metric returns the Metric parameter.
func (ps Parameters) Metric() string { return ps.String("Metric") }

// Resolutions returns NumberOfResolutions, or 0 when absent or malformed.
func (ps Parameters) Resolutions() int {
	n, err := strconv.Atoi(ps.String("NumberOfResolutions"))
	if err != nil {
		return 0
	}
	return n
}

// Parse reads a parameter file. Text outside parentheses other than comments
// is a syntax error.
func Parse(content string) (Parameters, error) {
	var out Parameters
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.ReplaceAll(stripComment(sc.Text()), "\t", " "))
		for line != "" {
			if line[0] != '(' {
				return nil, fmt.Errorf("%w: line %d: unexpected %q", ErrSyntax, lineNo, line)
			}
			end := closingParen(line)
			if end < 0 {
				return nil, fmt.Errorf("%w: line %d: missing ')'", ErrSyntax, lineNo)
			}
			p, err := parseEntry(line[1:end])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrSyntax, lineNo, err)
			}
			p.Line = lineNo
			out = append(out, p)
			line = strings.TrimSpace(line[end+1:])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read parameters: %w", err)
	}
	return out, nil
}

// stripComment drops a "//" comment that is not inside a string literal.
func stripComment(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '"':
			inString = !inString
		case !inString && line[i] == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}

func closingParen(line string) int {
	inString := false
	for i := 1; i < len(line); i++ {
		switch line[i] {
		case '"':
			inString = !inString
		case ')':
			if !inString {
				return i
			}
		}
	}
	return -1
}

func parseEntry(body string) (Parameter, error) {
	body = strings.TrimSpace(body)
	name, rest, _ := strings.Cut(body, " ")
	if name == "" {
		return Parameter{}, errors.New("empty entry")
	}
	if strings.ContainsAny(name, `"`) {
		return Parameter{}, fmt.Errorf("invalid name %q", name)
	}
	p := Parameter{Name: name}
	rest = strings.TrimSpace(rest)
	for rest != "" {
		if rest[0] == '"' {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return Parameter{}, fmt.Errorf("unterminated string in %s", name)
			}
			p.Values = append(p.Values, Value{Text: rest[1 : end+1], Quoted: true})
			rest = strings.TrimSpace(rest[end+2:])
			continue
		}
		tok, tail, _ := strings.Cut(rest, " ")
		p.Values = append(p.Values, Value{Text: tok})
		rest = strings.TrimSpace(tail)
	}
	return p, nil
}

// Format renders parameters back to elastix syntax, one entry per line.
func Format(ps Parameters) string {
	var b strings.Builder
	for _, p := range ps {
		b.WriteByte('(')
		b.WriteString(p.Name)
		for _, v := range p.Values {
			b.WriteByte(' ')
			b.WriteString(v.String())
		}
		b.WriteString(")\n")
	}
	return b.String()
}
