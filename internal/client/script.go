package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Directives that close a block of checks.
const (
	DirectiveRun    = "run"
	DirectiveNowait = "nowait"
)

// ErrScriptSyntax is returned for scripts that cannot be parsed.
var ErrScriptSyntax = errors.New("script syntax error")

// Check pairs a request target with the response body expected for it.
type Check struct {
	Request  string
	Expected string
}

// Block is a batch of checks executed Reps times in waves of Threads
// concurrent requests. With Nowait set the waves of the last repetition
// are started without waiting for them to finish.
type Block struct {
	Checks  []Check
	Threads int
	Reps    int
	Nowait  bool
}

// Script is a parsed test script. Trailing holds checks that were never
// closed by a run or nowait directive; they are not executed.
type Script struct {
	Blocks   []Block
	Trailing []Check
}

// ParseScript reads a script. Tokens are separated by whitespace; a token
// starting with a double quote runs to the matching unescaped quote and a
// backslash escapes the next character. Outside directives, tokens come in
// request/expected-response pairs:
//
//	"trans=create&name=ibm&trade=100" "Stock ibm created with balance = 100"
//	run 4 2
func ParseScript(r io.Reader) (*Script, error) {
	tok := newTokenizer(r)
	script := &Script{}
	var pending []Check

	for {
		word, err := tok.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch word {
		case DirectiveRun, DirectiveNowait:
			threads, err := tok.int(word, "threads")
			if err != nil {
				return nil, err
			}
			reps, err := tok.int(word, "repetitions")
			if err != nil {
				return nil, err
			}
			script.Blocks = append(script.Blocks, Block{
				Checks:  pending,
				Threads: threads,
				Reps:    reps,
				Nowait:  word == DirectiveNowait,
			})
			pending = nil
		default:
			expected, err := tok.next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil, fmt.Errorf("%w: line %d: request %q has no expected response", ErrScriptSyntax, tok.line, word)
				}
				return nil, err
			}
			pending = append(pending, Check{Request: word, Expected: expected})
		}
	}
	script.Trailing = pending
	return script, nil
}

type tokenizer struct {
	r    *bufio.Reader
	line int
}

func newTokenizer(r io.Reader) *tokenizer {
	return &tokenizer{r: bufio.NewReader(r), line: 1}
}

func (t *tokenizer) read() (byte, error) {
	c, err := t.r.ReadByte()
	if err == nil && c == '\n' {
		t.line++
	}
	return c, err
}

// next returns the next token, or io.EOF once input is exhausted.
func (t *tokenizer) next() (string, error) {
	c, err := t.read()
	for err == nil && isSpace(c) {
		c, err = t.read()
	}
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if c == '"' {
		start := t.line
		for {
			c, err = t.read()
			if err != nil {
				return "", fmt.Errorf("%w: line %d: unterminated quoted token", ErrScriptSyntax, start)
			}
			switch c {
			case '"':
				return sb.String(), nil
			case '\\':
				if c, err = t.read(); err != nil {
					return "", fmt.Errorf("%w: line %d: unterminated quoted token", ErrScriptSyntax, start)
				}
			}
			sb.WriteByte(c)
		}
	}

	for err == nil && !isSpace(c) {
		sb.WriteByte(c)
		c, err = t.read()
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return sb.String(), nil
}

// int reads a positive integer argument of directive.
func (t *tokenizer) int(directive, what string) (int, error) {
	word, err := t.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("%w: line %d: %s needs %s", ErrScriptSyntax, t.line, directive, what)
		}
		return 0, err
	}
	n, err := strconv.Atoi(word)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: line %d: %s %s must be a positive integer, got %q", ErrScriptSyntax, t.line, directive, what, word)
	}
	return n, nil
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
