// Package lexer turns Abysmal source text into a flat token stream. It is
// a single-pass, line-oriented tokenizer: comments are stripped before
// anything else sees the source, backslash line continuations are joined
// inline (so line numbers stay accurate for every token after one), and
// numeric literal suffixes (%, k, m, b) are folded into the literal's
// exponent at lex time so every later stage only ever sees plain decimals.
package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zillow/abysmal/decimal"
	"github.com/zillow/abysmal/token"
)

// Error reports a lexical problem at a specific source position. It
// satisfies error and is the only error type this package returns.
type Error struct {
	Line, Char int
	Msg        string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d, char %d: %s", e.Line, e.Char, e.Msg)
}

// suffixShift maps a numeric literal suffix to the power-of-ten exponent
// shift applied to the digits preceding it.
var suffixShift = map[byte]int32{
	'%': -2,
	'k': 3,
	'K': 3,
	'm': 6,
	'M': 6,
	'b': 9,
	'B': 9,
}

type lexer struct {
	src   string
	pos   int // byte offset
	line  int
	col   int // 1-based rune column on the current line
	toks  []token.Token
}

// Lex tokenizes src in full, returning every token up to and including a
// terminal token.EOF, or the first lexical Error encountered.
func Lex(src string) ([]token.Token, error) {
	l := &lexer{src: stripComments(normalizeNewlines(src)), line: 1, col: 1}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.toks = append(l.toks, tok)
		if tok.Kind == token.EOF {
			return l.toks, nil
		}
	}
}

// normalizeNewlines collapses the three line-ending forms spec.md permits
// (\r\n, \r, \n) to a single \n so every later pass only ever sees one.
func normalizeNewlines(src string) string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	return strings.ReplaceAll(src, "\r", "\n")
}

// stripComments removes `#`-to-end-of-line comments. Abysmal has no block
// comment form.
func stripComments(src string) string {
	var b strings.Builder
	inLine := strings.Split(src, "\n")
	for i, line := range inLine {
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		b.WriteString(line)
		if i != len(inLine)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (l *lexer) errorf(format string, args ...interface{}) (token.Token, error) {
	return token.Token{}, &Error{Line: l.line, Char: l.col, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) peekRune() (rune, int) {
	if l.pos >= len(l.src) {
		return 0, 0
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	return r, size
}

func (l *lexer) advance() rune {
	r, size := l.peekRune()
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

// tryJoinContinuation consumes a backslash that begins a line-continuation
// (the backslash, any trailing horizontal whitespace, and the newline it
// precedes), reporting joined=true so the caller keeps skipping instead of
// emitting an EOL — the two physical lines become one logical line, but
// l.line still advances past the consumed newline so every later
// diagnostic's line number stays correct. A backslash followed by anything
// other than whitespace/newline/end-of-input is a lexical error.
func (l *lexer) tryJoinContinuation() (joined bool, err error) {
	l.advance() // consume '\\'
	for {
		r, _ := l.peekRune()
		if r == ' ' || r == '\t' {
			l.advance()
			continue
		}
		break
	}
	r, _ := l.peekRune()
	if r == '\n' {
		l.advance()
		return true, nil
	}
	if r == 0 {
		return true, nil
	}
	_, err = l.errorf("unexpected text after line-continuation character")
	return false, err
}

func (l *lexer) next() (token.Token, error) {
	for {
		r, _ := l.peekRune()
		if r == 0 {
			return token.Token{Kind: token.EOF, Line: l.line, Char: l.col}, nil
		}
		if r == '\n' {
			l.advance()
			return token.Token{Kind: token.EOL, Line: l.line - 1, Char: l.col}, nil
		}
		if r == '\\' {
			joined, err := l.tryJoinContinuation()
			if err != nil {
				return token.Token{}, err
			}
			if joined {
				continue
			}
		}
		if unicode.IsSpace(r) {
			l.advance()
			continue
		}
		break
	}

	startLine, startCol := l.line, l.col
	r, _ := l.peekRune()

	switch {
	case r == '@':
		l.advance()
		name, err := l.readIdentRunes()
		if err != nil {
			return token.Token{}, err
		}
		if name == "" {
			return l.errorf("expected label name after '@'")
		}
		return token.Token{Kind: token.Label, Text: name, Line: startLine, Char: startCol}, nil
	case unicode.IsDigit(r):
		return l.readNumber(startLine, startCol)
	case unicode.IsLetter(r) || r == '_':
		name, _ := l.readIdentRunes()
		// "random!" is a single literal token, not the identifier "random"
		// followed by "!": the bang is part of its spelling.
		if name == "random" {
			if r2, sz := l.peekRune(); sz == 1 && r2 == '!' {
				l.advance()
				return token.Token{Kind: token.Random, Text: "random!", Line: startLine, Char: startCol}, nil
			}
		}
		if kw, ok := token.Keywords[name]; ok {
			return token.Token{Kind: kw, Text: name, Line: startLine, Char: startCol}, nil
		}
		return token.Token{Kind: token.Identifier, Text: name, Line: startLine, Char: startCol}, nil
	}

	return l.readSymbol(startLine, startCol)
}

func (l *lexer) readIdentRunes() (string, error) {
	var b strings.Builder
	for {
		r, _ := l.peekRune()
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			l.advance()
			continue
		}
		break
	}
	return b.String(), nil
}

// readNumber consumes a decimal literal including an optional fractional
// part and an optional single-character suffix (%, k, m, b), applying the
// suffix's exponent shift before handing the text to decimal.Parse.
func (l *lexer) readNumber(line, col int) (token.Token, error) {
	start := l.pos
	for {
		r, _ := l.peekRune()
		if unicode.IsDigit(r) {
			l.advance()
			continue
		}
		break
	}
	if r, _ := l.peekRune(); r == '.' {
		l.advance()
		for {
			r, _ := l.peekRune()
			if unicode.IsDigit(r) {
				l.advance()
				continue
			}
			break
		}
	}

	digits := l.src[start:l.pos]

	var shift int32
	if r, sz := l.peekRune(); sz == 1 {
		if s, ok := suffixShift[byte(r)]; ok {
			shift = s
			l.advance()
		}
	}

	d, err := decimal.Parse(digits)
	if err != nil {
		return l.errorf("invalid number literal %q", digits)
	}
	if shift != 0 {
		scaled, err := d.Mul(decimal.New(1, shift))
		if err != nil {
			return l.errorf("number literal %q is out of range", digits)
		}
		d = scaled
	}
	return token.Token{Kind: token.Literal, Text: d.String(), Line: line, Char: col}, nil
}

func (l *lexer) readSymbol(line, col int) (token.Token, error) {
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "==":
		l.advance()
		l.advance()
		return token.Token{Kind: token.Eq, Text: two, Line: line, Char: col}, nil
	case "=>":
		l.advance()
		l.advance()
		return token.Token{Kind: token.Arrow, Text: two, Line: line, Char: col}, nil
	case "!=":
		l.advance()
		l.advance()
		return token.Token{Kind: token.Ne, Text: two, Line: line, Char: col}, nil
	case "<=":
		l.advance()
		l.advance()
		return token.Token{Kind: token.Le, Text: two, Line: line, Char: col}, nil
	case ">=":
		l.advance()
		l.advance()
		return token.Token{Kind: token.Ge, Text: two, Line: line, Char: col}, nil
	case "&&":
		l.advance()
		l.advance()
		return token.Token{Kind: token.AndAnd, Text: two, Line: line, Char: col}, nil
	case "||":
		l.advance()
		l.advance()
		return token.Token{Kind: token.OrOr, Text: two, Line: line, Char: col}, nil
	}

	r := l.advance()
	switch r {
	case '=':
		return token.Token{Kind: token.Assign, Text: "=", Line: line, Char: col}, nil
	case '!':
		return token.Token{Kind: token.Bang, Text: "!", Line: line, Char: col}, nil
	case '+':
		return token.Token{Kind: token.Plus, Text: "+", Line: line, Char: col}, nil
	case '-':
		return token.Token{Kind: token.Minus, Text: "-", Line: line, Char: col}, nil
	case '*':
		return token.Token{Kind: token.Star, Text: "*", Line: line, Char: col}, nil
	case '/':
		return token.Token{Kind: token.Slash, Text: "/", Line: line, Char: col}, nil
	case '^':
		return token.Token{Kind: token.Caret, Text: "^", Line: line, Char: col}, nil
	case '(':
		return token.Token{Kind: token.LParen, Text: "(", Line: line, Char: col}, nil
	case ')':
		return token.Token{Kind: token.RParen, Text: ")", Line: line, Char: col}, nil
	case '{':
		return token.Token{Kind: token.LBrace, Text: "{", Line: line, Char: col}, nil
	case '}':
		return token.Token{Kind: token.RBrace, Text: "}", Line: line, Char: col}, nil
	case '[':
		return token.Token{Kind: token.LBracket, Text: "[", Line: line, Char: col}, nil
	case ']':
		return token.Token{Kind: token.RBracket, Text: "]", Line: line, Char: col}, nil
	case ',':
		return token.Token{Kind: token.Comma, Text: ",", Line: line, Char: col}, nil
	case ':':
		return token.Token{Kind: token.Colon, Text: ":", Line: line, Char: col}, nil
	case '?':
		return token.Token{Kind: token.Question, Text: "?", Line: line, Char: col}, nil
	case '<':
		return token.Token{Kind: token.Lt, Text: "<", Line: line, Char: col}, nil
	case '>':
		return token.Token{Kind: token.Gt, Text: ">", Line: line, Char: col}, nil
	case '&':
		return l.errorf("unexpected character %q (did you mean '&&'?)", r)
	case '|':
		return l.errorf("unexpected character %q (did you mean '||'?)", r)
	}
	return l.errorf("unexpected character %q", r)
}

// CanonicalizeLiteral parses a single numeric literal (with an optional
// trailing %, k, m, or b suffix) using the same rules the lexer applies
// inline, independent of a full compile. It reports ok=false for anything
// that isn't a clean literal.
func CanonicalizeLiteral(s string) (decimal.Decimal, bool) {
	toks, err := Lex(s)
	if err != nil || len(toks) < 2 {
		return decimal.Decimal{}, false
	}
	if toks[0].Kind != token.Literal || toks[1].Kind != token.EOF {
		return decimal.Decimal{}, false
	}
	d, err := decimal.Parse(toks[0].Text)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
