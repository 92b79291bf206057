package condition

import (
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Functions returns the callable function table. Every entry is pure and
// bounded by the size of its inputs.
func Functions() map[string]function.Function {
	return map[string]function.Function{
		"lower":       stdlib.LowerFunc,
		"upper":       stdlib.UpperFunc,
		"trimspace":   stdlib.TrimSpaceFunc,
		"strlen":      stdlib.StrlenFunc,
		"length":      stdlib.LengthFunc,
		"contains":    stdlib.ContainsFunc,
		"strcontains": stringPredicate(strings.Contains),
		"startswith":  stringPredicate(strings.HasPrefix),
		"endswith":    stringPredicate(strings.HasSuffix),
		"has":         hasFunc,
	}
}

func stringPredicate(fn func(s, sub string) bool) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "str", Type: cty.String},
			{Name: "substr", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return cty.BoolVal(fn(args[0].AsString(), args[1].AsString())), nil
		},
	})
}

// hasFunc reports whether an object or map has the given attribute,
// e.g. has(collected_data, "email").
var hasFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "collection", Type: cty.DynamicPseudoType},
		{Name: "key", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		coll, key := args[0], args[1].AsString()
		switch {
		case coll.IsNull() || !coll.IsKnown():
			return cty.False, nil
		case coll.Type().IsObjectType():
			return cty.BoolVal(coll.Type().HasAttribute(key)), nil
		case coll.Type().IsMapType():
			return coll.HasIndex(cty.StringVal(key)), nil
		}
		return cty.False, nil
	},
})
