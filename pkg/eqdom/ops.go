package eqdom

import (
	"strings"

	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
)

// OpKind is the kind of operation an edge performs.
type OpKind int

const (
	OpSkip   OpKind = iota // No effect
	OpAssign               // Var := Value
	OpHavoc                // Var := *
	OpAssume               // Cond must hold
	OpBlock                // assume false
)

// Op is the parsed operation of an edge.
type Op struct {
	Kind  OpKind
	Var   string
	Value Term
	Cond  Atom
}

var declPrefixes = []string{"int ", "var ", "long "}

// ParseOp reads the operation of e. Unparseable code, and calls or returns
// carrying code, yield an *cpa.UnsupportedError.
func ParseOp(e cfa.Edge) (Op, error) {
	code := strings.TrimSpace(e.Code)
	if code == "" || e.Kind == cfa.EdgeBlank {
		return Op{Kind: OpSkip}, nil
	}
	unsupported := func(reason string) (Op, error) {
		return Op{}, &cpa.UnsupportedError{Edge: e, Reason: reason}
	}

	switch e.Kind {
	case cfa.EdgeCall, cfa.EdgeReturn:
		return unsupported("function calls are not modelled")

	case cfa.EdgeAssume:
		switch code {
		case "true":
			return Op{Kind: OpSkip}, nil
		case "false":
			return Op{Kind: OpBlock}, nil
		}
		a, err := ParseAtom(code)
		if err != nil {
			return unsupported(err.Error())
		}
		return Op{Kind: OpAssume, Cond: a}, nil

	case cfa.EdgeDeclaration:
		for _, p := range declPrefixes {
			code = strings.TrimPrefix(code, p)
		}
		if !strings.Contains(code, ":=") {
			if !isIdent(code) {
				return unsupported("bad declaration")
			}
			return Op{Kind: OpHavoc, Var: code}, nil
		}
	}

	lhs, rhs, ok := strings.Cut(code, ":=")
	if !ok {
		return unsupported("expected an assignment")
	}
	lhs, rhs = strings.TrimSpace(lhs), strings.TrimSpace(rhs)
	if !isIdent(lhs) {
		return unsupported("bad assignment target " + lhs)
	}
	if rhs == "*" {
		return Op{Kind: OpHavoc, Var: lhs}, nil
	}
	t, err := ParseTerm(rhs)
	if err != nil {
		return unsupported(err.Error())
	}
	return Op{Kind: OpAssign, Var: lhs, Value: t}, nil
}

// ParseOps parses every edge of a path.
func ParseOps(edges []cfa.Edge) ([]Op, error) {
	ops := make([]Op, len(edges))
	for i, e := range edges {
		op, err := ParseOp(e)
		if err != nil {
			return nil, err
		}
		ops[i] = op
	}
	return ops, nil
}

// Post computes the exact strongest postcondition of f under op.
func Post(f Formula, op Op) Formula {
	if f.IsBottom() {
		return f
	}
	switch op.Kind {
	case OpHavoc:
		return f.Forget(op.Var)
	case OpAssign:
		if !op.Value.Const && op.Value.Var == op.Var {
			return f
		}
		return f.Forget(op.Var).And(Eq(Var(op.Var), op.Value))
	case OpAssume:
		return f.And(op.Cond)
	case OpBlock:
		return Bottom()
	}
	return f
}
