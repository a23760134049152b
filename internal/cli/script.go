package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/ddflow/internal/value"
)

// CommandKind identifies a script command.
type CommandKind int

const (
	CmdStart CommandKind = iota
	CmdInsert
	CmdDelete
	CmdCommit
	CmdRollback
	CmdDump
	CmdQueryIndex
	CmdTimestamp
	CmdEcho
	CmdExit
)

var commandNames = map[CommandKind]string{
	CmdStart:      "start",
	CmdInsert:     "insert",
	CmdDelete:     "delete",
	CmdCommit:     "commit",
	CmdRollback:   "rollback",
	CmdDump:       "dump",
	CmdQueryIndex: "query_index",
	CmdTimestamp:  "timestamp",
	CmdEcho:       "echo",
	CmdExit:       "exit",
}

func (k CommandKind) String() string {
	if s, ok := commandNames[k]; ok {
		return s
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// Command is one parsed script statement.
type Command struct {
	Kind CommandKind
	Line int

	// Name is the relation of insert, delete and dump, or the arrangement
	// of query_index. Empty for "dump;" (all relations).
	Name string

	// Value is the row of insert and delete, or the key of query_index.
	Value value.Value

	// DumpChanges is set by "commit dump_changes;".
	DumpChanges bool

	// Text is the argument of echo.
	Text string
}

// SyntaxError reports an unparsable script.
type SyntaxError struct {
	Line    int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// ParseScript parses a command script:
//
//	start;
//	insert Edge(1, 2),
//	delete Edge(2, 3);
//	commit dump_changes;
//	dump StronglyConnected;
//	query_index Connected_by_src(1);
//	echo done;
//	exit;
//
// Updates end with "," or ";". Values are integers, quoted strings, true,
// false, tuples in parentheses and arrays in brackets. "#" starts a comment.
func ParseScript(src string) ([]Command, error) {
	p := &parser{src: src, line: 1}
	var cmds []Command
	for {
		p.skipSpace()
		if p.eof() {
			return cmds, nil
		}
		c, err := p.command()
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
}

type parser struct {
	src  string
	pos  int
	line int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) advance() byte {
	c := p.src[p.pos]
	p.pos++
	if c == '\n' {
		p.line++
	}
	return c
}

func (p *parser) errorf(format string, args ...any) *SyntaxError {
	return &SyntaxError{Line: p.line, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch c := p.peek(); {
		case c == '#':
			for !p.eof() && p.peek() != '\n' {
				p.advance()
			}
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			p.advance()
		default:
			return
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == ':'
}

func (p *parser) ident() (string, error) {
	p.skipSpace()
	if !isIdentStart(p.peek()) {
		return "", p.errorf("expected identifier, found %s", p.found())
	}
	start := p.pos
	for !p.eof() && isIdentPart(p.peek()) {
		p.advance()
	}
	return p.src[start:p.pos], nil
}

func (p *parser) found() string {
	if p.eof() {
		return "end of input"
	}
	return strconv.QuoteRune(rune(p.peek()))
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return p.errorf("expected %q, found %s", c, p.found())
	}
	p.advance()
	return nil
}

func (p *parser) command() (Command, error) {
	line := p.line
	kw, err := p.ident()
	if err != nil {
		return Command{}, err
	}
	c := Command{Line: line}

	switch kw {
	case "start", "rollback", "timestamp", "exit":
		c.Kind = map[string]CommandKind{
			"start": CmdStart, "rollback": CmdRollback, "timestamp": CmdTimestamp, "exit": CmdExit,
		}[kw]
		return c, p.expect(';')

	case "commit":
		c.Kind = CmdCommit
		p.skipSpace()
		if isIdentStart(p.peek()) {
			mod, _ := p.ident()
			if mod != "dump_changes" {
				return c, p.errorf("unknown commit modifier %q", mod)
			}
			c.DumpChanges = true
		}
		return c, p.expect(';')

	case "insert", "delete":
		c.Kind = CmdInsert
		if kw == "delete" {
			c.Kind = CmdDelete
		}
		if c.Name, err = p.ident(); err != nil {
			return c, err
		}
		args, err := p.list('(', ')')
		if err != nil {
			return c, err
		}
		c.Value = value.Tuple(args)
		p.skipSpace()
		if p.peek() != ',' && p.peek() != ';' {
			return c, p.errorf("expected ',' or ';' after %s, found %s", kw, p.found())
		}
		p.advance()
		return c, nil

	case "dump":
		c.Kind = CmdDump
		p.skipSpace()
		if isIdentStart(p.peek()) {
			c.Name, _ = p.ident()
		}
		return c, p.expect(';')

	case "query_index":
		c.Kind = CmdQueryIndex
		if c.Name, err = p.ident(); err != nil {
			return c, err
		}
		args, err := p.list('(', ')')
		if err != nil {
			return c, err
		}
		if len(args) == 1 {
			c.Value = args[0]
		} else {
			c.Value = value.Tuple(args)
		}
		return c, p.expect(';')

	case "echo":
		c.Kind = CmdEcho
		start := p.pos
		for !p.eof() && p.peek() != ';' {
			p.advance()
		}
		if p.eof() {
			return c, p.errorf("unterminated echo")
		}
		c.Text = strings.TrimSpace(p.src[start:p.pos])
		p.advance()
		return c, nil

	default:
		return c, &SyntaxError{Line: line, Message: fmt.Sprintf("unknown command %q", kw)}
	}
}

// list parses open value, value, ... end.
func (p *parser) list(open, end byte) ([]value.Value, error) {
	if err := p.expect(open); err != nil {
		return nil, err
	}
	var vals []value.Value
	p.skipSpace()
	if p.peek() == end {
		p.advance()
		return vals, nil
	}
	for {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.advance()
		case end:
			p.advance()
			return vals, nil
		default:
			return nil, p.errorf("expected ',' or %q, found %s", end, p.found())
		}
	}
}

func (p *parser) value() (value.Value, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == '-' || (c >= '0' && c <= '9'):
		start := p.pos
		p.advance()
		for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
			p.advance()
		}
		n, err := strconv.ParseInt(p.src[start:p.pos], 10, 64)
		if err != nil {
			return nil, p.errorf("invalid integer %q", p.src[start:p.pos])
		}
		return value.Int(n), nil
	case c == '"':
		return p.str()
	case c == '(':
		vals, err := p.list('(', ')')
		if err != nil {
			return nil, err
		}
		return value.NewTuple(vals...), nil
	case c == '[':
		vals, err := p.list('[', ']')
		if err != nil {
			return nil, err
		}
		return value.NewArray(vals...), nil
	case isIdentStart(c):
		word, _ := p.ident()
		switch word {
		case "true":
			return value.Bool(true), nil
		case "false":
			return value.Bool(false), nil
		}
		return nil, p.errorf("unexpected identifier %q in value", word)
	default:
		return nil, p.errorf("expected value, found %s", p.found())
	}
}

func (p *parser) str() (value.Value, error) {
	start := p.pos
	p.advance()
	for {
		if p.eof() || p.peek() == '\n' {
			return nil, p.errorf("unterminated string")
		}
		c := p.advance()
		if c == '\\' && !p.eof() {
			p.advance()
			continue
		}
		if c == '"' {
			break
		}
	}
	s, err := strconv.Unquote(p.src[start:p.pos])
	if err != nil {
		return nil, p.errorf("invalid string %s", p.src[start:p.pos])
	}
	return value.NewString(s), nil
}
