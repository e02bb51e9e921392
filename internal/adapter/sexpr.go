package adapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	m "refract.dev/pkg/refract/internal/model"
)

// Parser turns a record's raw source into a Program forest. It stands
// in for the external parser collaborator; the mining core receives
// already-parsed trees.
type Parser interface {
	Parse(ctx context.Context, source string) ([]*m.Node, error)
}

// SexprParser parses the S-expression calculus the corpus is written
// in: (lam (params...) body...), (let name value body...),
// (loop name coll body...), (if cond then else), (seq ...), and
// generic application (f args...). Leaves are numbers, quoted strings,
// booleans and identifiers.
type SexprParser struct{}

// NewSexprParser constructs a SexprParser.
func NewSexprParser() *SexprParser {
	return &SexprParser{}
}

// Parse implements Parser.
func (p *SexprParser) Parse(ctx context.Context, source string) ([]*m.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens, err := tokenize(source)
	if err != nil {
		return nil, err
	}

	reader := &tokenReader{tokens: tokens}

	var forest []*m.Node

	for !reader.done() {
		node, err := parseForm(reader)
		if err != nil {
			return nil, err
		}

		forest = append(forest, node)
	}

	if len(forest) == 0 {
		return nil, fmt.Errorf("empty program")
	}

	return forest, nil
}

type token struct {
	text     string
	isString bool
}

func tokenize(source string) ([]token, error) {
	var tokens []token

	runes := []rune(source)
	i := 0

	for i < len(runes) {
		switch r := runes[i]; {
		case unicode.IsSpace(r):
			i++

		case r == ';':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}

		case r == '(' || r == ')':
			tokens = append(tokens, token{text: string(r)})
			i++

		case r == '"':
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				if runes[j] == '\\' {
					j++
				}

				j++
			}

			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated string literal")
			}

			unquoted, err := strconv.Unquote(string(runes[i : j+1]))
			if err != nil {
				return nil, fmt.Errorf("bad string literal: %w", err)
			}

			tokens = append(tokens, token{text: unquoted, isString: true})
			i = j + 1

		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) && runes[j] != '(' && runes[j] != ')' && runes[j] != ';' {
				j++
			}

			tokens = append(tokens, token{text: string(runes[i:j])})
			i = j
		}
	}

	return tokens, nil
}

type tokenReader struct {
	tokens []token
	pos    int
}

func (r *tokenReader) done() bool {
	return r.pos >= len(r.tokens)
}

func (r *tokenReader) peek() (token, error) {
	if r.done() {
		return token{}, fmt.Errorf("unexpected end of input")
	}

	return r.tokens[r.pos], nil
}

func (r *tokenReader) next() (token, error) {
	tok, err := r.peek()
	if err != nil {
		return token{}, err
	}

	r.pos++

	return tok, nil
}

func parseForm(r *tokenReader) (*m.Node, error) {
	tok, err := r.next()
	if err != nil {
		return nil, err
	}

	if tok.isString {
		return &m.Node{Kind: m.NodeLiteral, Lit: m.LitString, Value: tok.text}, nil
	}

	switch tok.text {
	case "(":
		return parseList(r)
	case ")":
		return nil, fmt.Errorf("unexpected )")
	default:
		return parseAtom(tok.text), nil
	}
}

func parseAtom(text string) *m.Node {
	switch {
	case text == "true" || text == "false":
		return &m.Node{Kind: m.NodeLiteral, Lit: m.LitBool, Value: text}
	case isNumeric(text):
		return &m.Node{Kind: m.NodeLiteral, Lit: m.LitNumber, Value: text}
	default:
		return &m.Node{Kind: m.NodeIdent, Name: text}
	}
}

func isNumeric(text string) bool {
	_, err := strconv.ParseFloat(text, 64)
	return err == nil
}

func parseList(r *tokenReader) (*m.Node, error) {
	head, err := r.peek()
	if err != nil {
		return nil, err
	}

	if !head.isString {
		switch head.text {
		case "lam":
			return parseLambda(r)
		case "let", "loop":
			return parseBinding(r)
		case "if":
			return parseFixedForm(r, m.NodeCond)
		case "seq":
			return parseFixedForm(r, m.NodeSeq)
		}
	}

	node := &m.Node{Kind: m.NodeCall}

	for {
		tok, err := r.peek()
		if err != nil {
			return nil, err
		}

		if !tok.isString && tok.text == ")" {
			r.pos++
			break
		}

		child, err := parseForm(r)
		if err != nil {
			return nil, err
		}

		node.Children = append(node.Children, child)
	}

	if len(node.Children) == 0 {
		return nil, fmt.Errorf("empty application")
	}

	return node, nil
}

func parseLambda(r *tokenReader) (*m.Node, error) {
	r.pos++ // lam

	open, err := r.next()
	if err != nil {
		return nil, err
	}

	if open.isString || open.text != "(" {
		return nil, fmt.Errorf("lam expects a parameter list")
	}

	node := &m.Node{Kind: m.NodeLambda}

	for {
		tok, err := r.next()
		if err != nil {
			return nil, err
		}

		if !tok.isString && tok.text == ")" {
			break
		}

		if !tok.isString && tok.text == "(" {
			return nil, fmt.Errorf("lam parameters must be identifiers")
		}

		node.Params = append(node.Params, tok.text)
	}

	return finishForm(r, node)
}

func parseBinding(r *tokenReader) (*m.Node, error) {
	keyword, err := r.next()
	if err != nil {
		return nil, err
	}

	kind := m.NodeLet
	if keyword.text == "loop" {
		kind = m.NodeLoop
	}

	name, err := r.next()
	if err != nil {
		return nil, err
	}

	if name.isString || name.text == "(" || name.text == ")" {
		return nil, fmt.Errorf("%s expects a binder name", keyword.text)
	}

	node := &m.Node{Kind: kind, Name: name.text}

	return finishForm(r, node)
}

func parseFixedForm(r *tokenReader, kind m.NodeKind) (*m.Node, error) {
	r.pos++ // keyword

	return finishForm(r, &m.Node{Kind: kind})
}

func finishForm(r *tokenReader, node *m.Node) (*m.Node, error) {
	for {
		tok, err := r.peek()
		if err != nil {
			return nil, err
		}

		if !tok.isString && tok.text == ")" {
			r.pos++
			break
		}

		child, err := parseForm(r)
		if err != nil {
			return nil, err
		}

		node.Children = append(node.Children, child)
	}

	if len(node.Children) == 0 {
		return nil, fmt.Errorf("%s form needs a body", node.Kind)
	}

	return node, nil
}

// SexprPrinter renders Programs and abstraction definitions back to the
// S-expression surface, one top-level form per line.
type SexprPrinter struct{}

// NewSexprPrinter constructs a SexprPrinter.
func NewSexprPrinter() *SexprPrinter {
	return &SexprPrinter{}
}

// Render implements Printer.
func (p *SexprPrinter) Render(program *m.Program, abstractions []m.Abstraction) (string, error) {
	var out strings.Builder

	for _, abstraction := range abstractions {
		fmt.Fprintf(&out, "(def %s (%s) ", abstraction.Name, strings.Join(abstraction.Params, " "))

		if err := writeNode(&out, abstraction.Body); err != nil {
			return "", err
		}

		out.WriteString(")\n")
	}

	for _, root := range program.Roots {
		if err := writeNode(&out, root); err != nil {
			return "", err
		}

		out.WriteByte('\n')
	}

	return out.String(), nil
}

func writeNode(out *strings.Builder, node *m.Node) error {
	switch node.Kind {
	case m.NodeIdent:
		out.WriteString(node.Name)

	case m.NodeLiteral:
		if node.Lit == m.LitString {
			out.WriteString(strconv.Quote(node.Value))
		} else {
			out.WriteString(node.Value)
		}

	case m.NodeHole:
		fmt.Fprintf(out, "$%s", node.Value)

	case m.NodeCall:
		out.WriteByte('(')

		for i, child := range node.Children {
			if i > 0 {
				out.WriteByte(' ')
			}

			if err := writeNode(out, child); err != nil {
				return err
			}
		}

		out.WriteByte(')')

	case m.NodeLambda:
		fmt.Fprintf(out, "(lam (%s)", strings.Join(node.Params, " "))

		if err := writeChildren(out, node); err != nil {
			return err
		}

		out.WriteByte(')')

	case m.NodeLet, m.NodeLoop:
		fmt.Fprintf(out, "(%s %s", node.Kind, node.Name)

		if err := writeChildren(out, node); err != nil {
			return err
		}

		out.WriteByte(')')

	case m.NodeCond:
		out.WriteString("(if")

		if err := writeChildren(out, node); err != nil {
			return err
		}

		out.WriteByte(')')

	case m.NodeSeq:
		out.WriteString("(seq")

		if err := writeChildren(out, node); err != nil {
			return err
		}

		out.WriteByte(')')

	default:
		return fmt.Errorf("cannot print node kind %s", node.Kind)
	}

	return nil
}

func writeChildren(out *strings.Builder, node *m.Node) error {
	for _, child := range node.Children {
		out.WriteByte(' ')

		if err := writeNode(out, child); err != nil {
			return err
		}
	}

	return nil
}
