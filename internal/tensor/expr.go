package tensor

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// DimExpr is a symbolic tensor dimension: either a constant or a named
// symbol bound at execution time. Expressions are immutable once built.
type DimExpr struct {
	value  int
	symbol string
}

// IsConstant reports whether the expression has a known value.
func (e *DimExpr) IsConstant() bool {
	return e.symbol == ""
}

// ConstantValue returns the folded value. It panics if e is not constant.
func (e *DimExpr) ConstantValue() int {
	if !e.IsConstant() {
		panic(fmt.Sprintf("dimension expression %s is not constant", e))
	}
	return e.value
}

// Eval resolves the expression against symbol bindings.
func (e *DimExpr) Eval(bindings map[string]int) (int, error) {
	if e.IsConstant() {
		return e.value, nil
	}
	v, ok := bindings[e.symbol]
	if !ok {
		return 0, errors.Errorf("unbound dimension symbol %q", e.symbol)
	}
	return v, nil
}

// String renders the expression, e.g. "in0.d0" or "4".
func (e *DimExpr) String() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.IsConstant():
		return fmt.Sprint(e.value)
	default:
		return e.symbol
	}
}

// ExprBuilder creates dimension expressions and interns constants.
type ExprBuilder struct {
	constants map[int]*DimExpr
}

// NewExprBuilder returns an empty builder.
func NewExprBuilder() *ExprBuilder {
	return &ExprBuilder{constants: make(map[int]*DimExpr)}
}

// Constant returns the expression for a known value.
func (b *ExprBuilder) Constant(v int) *DimExpr {
	if e, ok := b.constants[v]; ok {
		return e
	}
	e := &DimExpr{value: v}
	b.constants[v] = e
	return e
}

// Symbol returns an expression bound by name at execution time.
func (b *ExprBuilder) Symbol(name string) *DimExpr {
	return &DimExpr{symbol: name}
}

// DimsExprs is the symbolic shape of a tensor.
type DimsExprs []*DimExpr

// SymbolicDims describes a shape whose Dynamic dimensions become symbols
// named "<prefix>.d<axis>".
func (b *ExprBuilder) SymbolicDims(prefix string, s Shape) DimsExprs {
	out := make(DimsExprs, len(s))
	for i, dim := range s {
		if dim < 0 {
			out[i] = b.Symbol(fmt.Sprintf("%s.d%d", prefix, i))
		} else {
			out[i] = b.Constant(dim)
		}
	}
	return out
}

// Eval resolves every dimension against the bindings.
func (d DimsExprs) Eval(bindings map[string]int) (Shape, error) {
	out := make(Shape, len(d))
	for i, e := range d {
		v, err := e.Eval(bindings)
		if err != nil {
			return nil, errors.Wrapf(err, "axis %d", i)
		}
		out[i] = v
	}
	return out, nil
}

// Static returns the shape with Dynamic in place of non-constant dimensions.
func (d DimsExprs) Static() Shape {
	out := make(Shape, len(d))
	for i, e := range d {
		if e.IsConstant() {
			out[i] = e.value
		} else {
			out[i] = Dynamic
		}
	}
	return out
}

func (d DimsExprs) String() string {
	parts := make([]string, len(d))
	for i, e := range d {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Bind records the concrete value of every symbol in exprs given the actual
// runtime shape, so that dependent expressions can later be evaluated.
func Bind(bindings map[string]int, exprs DimsExprs, actual Shape) error {
	if len(exprs) != len(actual) {
		return errors.Errorf("rank mismatch binding %s to %s", exprs, actual)
	}
	for i, e := range exprs {
		if e.symbol != "" {
			bindings[e.symbol] = actual[i]
		}
	}
	return nil
}
