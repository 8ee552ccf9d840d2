package resolve_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capybara-rs/scheduler/internal/domain"
	"github.com/capybara-rs/scheduler/internal/resolve"
)

func newCtx(last *time.Time, env map[string]string) *resolve.Context {
	return &resolve.Context{
		Now:             time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		LastExecuteTime: last,
		Environment:     env,
	}
}

func str(s string) domain.Value {
	tmpl, err := domain.ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return domain.StringValue{Template: tmpl}
}

func TestResolve_Scalars(t *testing.T) {
	ctx := newCtx(nil, nil)

	c, err := resolve.Resolve(domain.IntegerValue{Literal: 42}, ctx)
	require.NoError(t, err)
	assert.Equal(t, resolve.Int(42), c)

	c, err = resolve.Resolve(domain.FloatValue{Literal: 2.5}, ctx)
	require.NoError(t, err)
	assert.Equal(t, resolve.Float(2.5), c)

	c, err = resolve.Resolve(domain.BooleanValue{Literal: true}, ctx)
	require.NoError(t, err)
	assert.Equal(t, resolve.Bool(true), c)

	c, err = resolve.Resolve(domain.NullValue{}, ctx)
	require.NoError(t, err)
	assert.Equal(t, resolve.Null{}, c)
}

func TestResolve_ExecuteTime(t *testing.T) {
	ctx := newCtx(nil, nil)

	c, err := resolve.Resolve(domain.SourceValue{Source: domain.SourceExecuteTime}, ctx)
	require.NoError(t, err)
	assert.Equal(t, resolve.Str("2024-01-02T03:04:05Z"), c)
}

func TestResolve_LastExecuteTime(t *testing.T) {
	last := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := newCtx(&last, nil)

	c, err := resolve.Resolve(domain.SourceValue{Source: domain.SourceLastExecuteTime}, ctx)
	require.NoError(t, err)
	assert.Equal(t, resolve.Str("2024-01-01T00:00:00Z"), c)
}

func TestResolve_MissingLastExecuteTime(t *testing.T) {
	ctx := newCtx(nil, nil)

	_, err := resolve.Resolve(domain.SourceValue{Source: domain.SourceLastExecuteTime}, ctx)
	require.Error(t, err)

	var missing *domain.MissingSourceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, domain.SourceLastExecuteTime, missing.Source)
}

func TestResolve_EnvLookup(t *testing.T) {
	ctx := newCtx(nil, map[string]string{"API_KEY": "secret"})

	c, err := resolve.Resolve(domain.EnvValue{Name: "API_KEY"}, ctx)
	require.NoError(t, err)
	assert.Equal(t, resolve.Str("secret"), c)
}

func TestResolve_EnvMissing(t *testing.T) {
	ctx := newCtx(nil, map[string]string{})

	_, err := resolve.Resolve(domain.EnvValue{Name: "API_KEY"}, ctx)
	var unresolved *domain.UnresolvedEnvError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "API_KEY", unresolved.Name)
}

func TestResolve_StringTemplateSubstitution(t *testing.T) {
	ctx := newCtx(nil, map[string]string{"HOST": "api.example.com", "PORT": "8443"})

	c, err := resolve.Resolve(str("https://env!(HOST):env!(PORT)/v1"), ctx)
	require.NoError(t, err)
	assert.Equal(t, resolve.Str("https://api.example.com:8443/v1"), c)
}

func TestResolve_ObjectOrderPreserved(t *testing.T) {
	last := time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)
	ctx := newCtx(&last, map[string]string{"REGION": "eu-west-1"})

	node := domain.ObjectValue{Properties: []domain.Property{
		{Name: "window_start", Value: domain.SourceValue{Source: domain.SourceLastExecuteTime}},
		{Name: "window_end", Value: domain.SourceValue{Source: domain.SourceExecuteTime}},
		{Name: "region", Value: domain.EnvValue{Name: "REGION"}},
		{Name: "limit", Value: domain.IntegerValue{Literal: 100}},
		{Name: "dry_run", Value: domain.BooleanValue{Literal: false}},
		{Name: "cursor", Value: domain.NullValue{}},
	}}

	c, err := resolve.Resolve(node, ctx)
	require.NoError(t, err)

	out, err := resolve.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t,
		`{"window_start":"2023-12-31T23:00:00Z","window_end":"2024-01-02T03:04:05Z","region":"eu-west-1","limit":100,"dry_run":false,"cursor":null}`,
		string(out))
}

func TestResolve_ObjectAllOrNothing(t *testing.T) {
	ctx := newCtx(nil, map[string]string{})

	node := domain.ObjectValue{Properties: []domain.Property{
		{Name: "ok", Value: domain.IntegerValue{Literal: 1}},
		{Name: "broken", Value: domain.EnvValue{Name: "MISSING"}},
		{Name: "after", Value: domain.IntegerValue{Literal: 2}},
	}}

	_, err := resolve.Resolve(node, ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	var unresolved *domain.UnresolvedEnvError
	require.ErrorAs(t, err, &unresolved)
}

func TestResolve_NestedErrorPath(t *testing.T) {
	ctx := newCtx(nil, nil)

	node := domain.ObjectValue{Properties: []domain.Property{
		{Name: "outer", Value: domain.ArrayValue{Items: []domain.Value{
			domain.IntegerValue{Literal: 0},
			domain.SourceValue{Source: domain.SourceLastExecuteTime},
		}}},
	}}

	_, err := resolve.Resolve(node, ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outer: [1]:")
}

func TestResolve_ArrayMixedTypes(t *testing.T) {
	ctx := newCtx(nil, nil)

	node := domain.ArrayValue{Items: []domain.Value{
		str("a"),
		domain.IntegerValue{Literal: 7},
		domain.BooleanValue{Literal: true},
		domain.NullValue{},
	}}

	c, err := resolve.Resolve(node, ctx)
	require.NoError(t, err)

	out, err := resolve.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `["a",7,true,null]`, string(out))
}

func TestResolve_Deterministic(t *testing.T) {
	last := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := newCtx(&last, map[string]string{"K": "v"})

	node := domain.ObjectValue{Properties: []domain.Property{
		{Name: "t", Value: domain.SourceValue{Source: domain.SourceExecuteTime}},
		{Name: "k", Value: domain.EnvValue{Name: "K"}},
	}}

	first, err := resolve.Resolve(node, ctx)
	require.NoError(t, err)
	second, err := resolve.Resolve(node, ctx)
	require.NoError(t, err)

	a, _ := resolve.Marshal(first)
	b, _ := resolve.Marshal(second)
	assert.Equal(t, string(a), string(b))
}

func TestResolve_BooleanNotDoubleSerialized(t *testing.T) {
	ctx := newCtx(nil, nil)

	c, err := resolve.Resolve(domain.BooleanValue{Literal: true}, ctx)
	require.NoError(t, err)

	out, err := resolve.Marshal(c)
	require.NoError(t, err)
	// true stays a JSON boolean, never the string "true".
	assert.Equal(t, `true`, string(out))
}

func TestResolveTemplate_AllEnvMustResolve(t *testing.T) {
	ctx := newCtx(nil, map[string]string{"A": "1"})

	tmpl, err := domain.ParseTemplate("env!(A)-env!(B)")
	require.NoError(t, err)

	_, err = resolve.ResolveTemplate(tmpl, ctx)
	var unresolved *domain.UnresolvedEnvError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "B", unresolved.Name)
}

func TestResolveScalar_HeaderRendering(t *testing.T) {
	last := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := newCtx(&last, map[string]string{"KEY": "abc"})

	s, err := resolve.ResolveScalar(str("token env!(KEY)"), ctx)
	require.NoError(t, err)
	assert.Equal(t, "token abc", s)

	s, err = resolve.ResolveScalar(domain.IntegerValue{Literal: 42}, ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", s)

	s, err = resolve.ResolveScalar(domain.FloatValue{Literal: 1.5}, ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.5", s)

	s, err = resolve.ResolveScalar(domain.SourceValue{Source: domain.SourceLastExecuteTime}, ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", s)
}

func TestResolveScalar_RejectsComposites(t *testing.T) {
	ctx := newCtx(nil, nil)

	_, err := resolve.ResolveScalar(domain.ObjectValue{}, ctx)
	require.Error(t, err)

	_, err = resolve.ResolveScalar(domain.BooleanValue{Literal: true}, ctx)
	require.Error(t, err)
}

func TestMarshal_StringEscaping(t *testing.T) {
	out, err := resolve.Marshal(resolve.Object{
		{Name: "msg", Value: resolve.Str(`say "hi"` + "\n")},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"msg":"say \"hi\"\n"}`, string(out))
}
