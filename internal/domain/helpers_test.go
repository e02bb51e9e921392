package domain

import (
	m "refract.dev/pkg/refract/internal/model"
)

func ident(name string) *m.Node {
	return &m.Node{Kind: m.NodeIdent, Name: name}
}

func num(value string) *m.Node {
	return &m.Node{Kind: m.NodeLiteral, Lit: m.LitNumber, Value: value}
}

func str(value string) *m.Node {
	return &m.Node{Kind: m.NodeLiteral, Lit: m.LitString, Value: value}
}

func call(children ...*m.Node) *m.Node {
	return &m.Node{Kind: m.NodeCall, Children: children}
}

func seq(children ...*m.Node) *m.Node {
	return &m.Node{Kind: m.NodeSeq, Children: children}
}

func let(name string, children ...*m.Node) *m.Node {
	return &m.Node{Kind: m.NodeLet, Name: name, Children: children}
}

func lam(params []string, children ...*m.Node) *m.Node {
	return &m.Node{Kind: m.NodeLambda, Params: params, Children: children}
}

func occurrenceAt(programID string, path []int, node *m.Node, enclosing map[string]bool) m.Occurrence {
	_, slots := Canonicalize(node, enclosing)

	return m.Occurrence{
		ProgramID: programID,
		Pos:       m.Position{ProgramID: programID, Path: path},
		Node:      node,
		Slots:     slots,
	}
}
