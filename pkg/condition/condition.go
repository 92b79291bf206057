// Package condition evaluates the boolean expressions of conditional nodes.
//
// Expressions use the HCL native expression syntax and see exactly two
// variables: user_input (the case-folded inbound text) and collected_data
// (the session's collected fields). Only a fixed table of pure string
// functions is callable, so stored flow data can never run host code.
//
//	user_input == "yes"
//	strcontains(user_input, "help") || collected_data.plan == "pro"
//	collected_data.age >= 18
package condition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
)

// Variable names visible to expressions.
const (
	VarUserInput     = "user_input"
	VarCollectedData = "collected_data"
)

// Context is the typed input of an evaluation.
type Context struct {
	UserInput     string
	CollectedData map[string]string
}

// EvaluationError reports why an expression could not produce a boolean.
type EvaluationError struct {
	Expr string
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("condition %q: %v", e.Expr, e.Err)
}

// Unwrap exposes both the cause and domain.ErrEvaluation to errors.Is.
func (e *EvaluationError) Unwrap() []error {
	return []error{domain.ErrEvaluation, e.Err}
}

// Evaluator is safe for concurrent use.
type Evaluator struct {
	funcs map[string]function.Function
}

// New returns an evaluator with the default function table.
func New() *Evaluator {
	return &Evaluator{funcs: Functions()}
}

// Evaluate parses and evaluates expr against c.
// Any failure is returned as an *EvaluationError; callers treat it as false.
func (e *Evaluator) Evaluate(expr string, c Context) (bool, error) {
	src := Normalize(expr)
	if strings.TrimSpace(src) == "" {
		return false, &EvaluationError{Expr: expr, Err: errors.New("empty expression")}
	}

	parsed, diags := hclsyntax.ParseExpression([]byte(src), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return false, &EvaluationError{Expr: expr, Err: diags}
	}

	val, diags := parsed.Value(e.evalContext(c))
	if diags.HasErrors() {
		return false, &EvaluationError{Expr: expr, Err: diags}
	}
	if val.IsNull() || !val.IsKnown() {
		return false, &EvaluationError{Expr: expr, Err: errors.New("expression has no value")}
	}

	b, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, &EvaluationError{Expr: expr, Err: fmt.Errorf("result is %s, not bool", val.Type().FriendlyName())}
	}
	return b.True(), nil
}

// Check reports syntax errors and references to unknown variables or
// functions without evaluating expr.
func (e *Evaluator) Check(expr string) error {
	src := Normalize(expr)
	parsed, diags := hclsyntax.ParseExpression([]byte(src), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return &EvaluationError{Expr: expr, Err: diags}
	}
	for _, tr := range parsed.Variables() {
		if root := tr.RootName(); root != VarUserInput && root != VarCollectedData {
			return &EvaluationError{Expr: expr, Err: fmt.Errorf("unknown variable %q", root)}
		}
	}
	var unknown error
	hclsyntax.VisitAll(parsed, func(n hclsyntax.Node) hcl.Diagnostics {
		if call, ok := n.(*hclsyntax.FunctionCallExpr); ok && unknown == nil {
			if _, known := e.funcs[call.Name]; !known {
				unknown = fmt.Errorf("unknown function %q", call.Name)
			}
		}
		return nil
	})
	if unknown != nil {
		return &EvaluationError{Expr: expr, Err: unknown}
	}
	return nil
}

func (e *Evaluator) evalContext(c Context) *hcl.EvalContext {
	data := make(map[string]cty.Value, len(c.CollectedData))
	for k, v := range c.CollectedData {
		data[k] = cty.StringVal(v)
	}
	collected := cty.EmptyObjectVal
	if len(data) > 0 {
		collected = cty.ObjectVal(data)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			VarUserInput:     cty.StringVal(c.UserInput),
			VarCollectedData: collected,
		},
		Functions: e.funcs,
	}
}
