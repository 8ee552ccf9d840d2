// Package resolve turns value-expression trees into concrete request
// payloads. Resolution is pure: the same (tree, context) pair always yields
// the same result, and no network or storage access happens here.
package resolve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/capybara-rs/scheduler/internal/domain"
)

// Resolve maps an expression node to its concrete value under ctx.
//
// Objects and arrays resolve all-or-nothing: children are resolved in
// declared order and the first failure aborts the whole node, wrapped with
// the failing field's location.
func Resolve(node domain.Value, ctx *Context) (Concrete, error) {
	switch v := node.(type) {
	case domain.StringValue:
		s, err := ResolveTemplate(v.Template, ctx)
		if err != nil {
			return nil, err
		}
		return Str(s), nil
	case domain.IntegerValue:
		return Int(v.Literal), nil
	case domain.FloatValue:
		return Float(v.Literal), nil
	case domain.BooleanValue:
		return Bool(v.Literal), nil
	case domain.NullValue:
		return Null{}, nil
	case domain.ObjectValue:
		obj := make(Object, 0, len(v.Properties))
		for _, p := range v.Properties {
			child, err := Resolve(p.Value, ctx)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.Name, err)
			}
			obj = append(obj, Field{Name: p.Name, Value: child})
		}
		return obj, nil
	case domain.ArrayValue:
		arr := make(Array, 0, len(v.Items))
		for i, item := range v.Items {
			child, err := Resolve(item, ctx)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr = append(arr, child)
		}
		return arr, nil
	case domain.SourceValue:
		s, err := ctx.source(v.Source)
		if err != nil {
			return nil, err
		}
		return Str(s), nil
	case domain.EnvValue:
		s, err := ctx.env(v.Name)
		if err != nil {
			return nil, err
		}
		return Str(s), nil
	}
	return nil, fmt.Errorf("unsupported value node %T", node)
}

// ResolveTemplate substitutes every env!(NAME) fragment and concatenates.
// All fragments must resolve before any substitution is returned.
func ResolveTemplate(t domain.Template, ctx *Context) (string, error) {
	var b strings.Builder
	for _, f := range t {
		if !f.IsEnv {
			b.WriteString(f.Literal)
			continue
		}
		v, err := ctx.env(f.Env)
		if err != nil {
			return "", err
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

// ResolveScalar renders a header-position node as text. Only the scalar node
// kinds allowed in headers are supported; composites are rejected here as a
// safety net behind the loader's restriction.
func ResolveScalar(node domain.Value, ctx *Context) (string, error) {
	switch v := node.(type) {
	case domain.StringValue:
		return ResolveTemplate(v.Template, ctx)
	case domain.IntegerValue:
		return strconv.FormatInt(v.Literal, 10), nil
	case domain.FloatValue:
		return strconv.FormatFloat(v.Literal, 'g', -1, 64), nil
	case domain.SourceValue:
		return ctx.source(v.Source)
	case domain.EnvValue:
		return ctx.env(v.Name)
	}
	return "", fmt.Errorf("node %T cannot be rendered as a header value", node)
}
