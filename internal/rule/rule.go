// Package rule parses the tiny router rule language: Host(`h`) and
// PathPrefix(`p`) / Path(`p`), combined with &&. The grammar is small enough
// that a hand-written recursive-descent parser is simpler and faster than a
// general expression engine.
package rule

import (
	"fmt"
	"regexp"
	"strings"

	"gateway/internal/snapshot"
)

// Parsed is the result of parsing one router rule: the host and path
// predicates it named. A rule that omits one predicate leaves the
// corresponding field at its zero value (Any host, empty-prefix path).
type Parsed struct {
	Host snapshot.HostPredicate
	Path snapshot.PathPredicate
}

// Parse parses a rule string such as:
//
//	Host(`test.localhost`) && PathPrefix(`/api`)
//	PathPrefix(`/`)
//	Host(`a.example.com`)
//
// It returns an error for anything that doesn't reduce to one or two
// predicate calls joined by &&; callers must treat a parse error as "omit
// this router, emit a warning" per the Config Aggregator's failure policy.
func Parse(rule string) (Parsed, error) {
	p := &parser{input: rule}
	var result Parsed
	sawHost, sawPath := false, false

	for {
		p.skipSpace()
		name, arg, err := p.parseCall()
		if err != nil {
			return Parsed{}, err
		}

		switch name {
		case "Host":
			if sawHost {
				return Parsed{}, fmt.Errorf("rule: duplicate Host() predicate")
			}
			result.Host = snapshot.HostPredicate{Host: strings.ToLower(arg)}
			sawHost = true
		case "PathPrefix":
			if sawPath {
				return Parsed{}, fmt.Errorf("rule: duplicate path predicate")
			}
			result.Path = snapshot.PathPredicate{Kind: snapshot.PathPrefix, Pattern: arg}
			sawPath = true
		case "Path":
			if sawPath {
				return Parsed{}, fmt.Errorf("rule: duplicate path predicate")
			}
			result.Path = snapshot.PathPredicate{Kind: snapshot.PathExact, Pattern: arg}
			sawPath = true
		case "PathRegexp":
			if sawPath {
				return Parsed{}, fmt.Errorf("rule: duplicate path predicate")
			}
			re, err := regexp.Compile(arg)
			if err != nil {
				return Parsed{}, fmt.Errorf("rule: invalid regex %q: %w", arg, err)
			}
			result.Path = snapshot.PathPredicate{Kind: snapshot.PathRegex, Pattern: arg, Regex: re}
			sawPath = true
		default:
			return Parsed{}, fmt.Errorf("rule: unknown predicate %q", name)
		}

		p.skipSpace()
		if p.eof() {
			break
		}
		if !p.consumeAnd() {
			return Parsed{}, fmt.Errorf("rule: expected '&&' at position %d", p.pos)
		}
	}

	if !sawHost {
		result.Host = snapshot.HostPredicate{Any: true}
	}
	if !sawPath {
		result.Path = snapshot.PathPredicate{Kind: snapshot.PathPrefix, Pattern: "/"}
	}
	return result, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) eof() bool { return p.pos >= len(p.input) }

func (p *parser) skipSpace() {
	for !p.eof() && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) consumeAnd() bool {
	if p.pos+2 <= len(p.input) && p.input[p.pos:p.pos+2] == "&&" {
		p.pos += 2
		return true
	}
	return false
}

// parseCall parses `Name(`arg`)` and returns the function name and the
// backtick-quoted argument.
func (p *parser) parseCall() (name, arg string, err error) {
	start := p.pos
	for !p.eof() && isIdentChar(p.input[p.pos]) {
		p.pos++
	}
	name = p.input[start:p.pos]
	if name == "" {
		return "", "", fmt.Errorf("rule: expected predicate name at position %d", start)
	}

	if p.eof() || p.input[p.pos] != '(' {
		return "", "", fmt.Errorf("rule: expected '(' after %q", name)
	}
	p.pos++

	p.skipSpace()
	if p.eof() || p.input[p.pos] != '`' {
		return "", "", fmt.Errorf("rule: expected backtick-quoted argument for %q", name)
	}
	p.pos++
	argStart := p.pos
	for !p.eof() && p.input[p.pos] != '`' {
		p.pos++
	}
	if p.eof() {
		return "", "", fmt.Errorf("rule: unterminated backtick string for %q", name)
	}
	arg = p.input[argStart:p.pos]
	p.pos++ // closing backtick

	p.skipSpace()
	if p.eof() || p.input[p.pos] != ')' {
		return "", "", fmt.Errorf("rule: expected ')' after %q argument", name)
	}
	p.pos++

	return name, arg, nil
}

func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
