package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capybara-rs/scheduler/internal/domain"
)

func TestParseTemplate_PlainText(t *testing.T) {
	tmpl, err := domain.ParseTemplate("https://example.com/load")
	require.NoError(t, err)

	require.Len(t, tmpl, 1)
	assert.False(t, tmpl[0].IsEnv)
	assert.Equal(t, "https://example.com/load", tmpl[0].Literal)
	assert.False(t, tmpl.HasEnvRefs())
}

func TestParseTemplate_SingleEnvRef(t *testing.T) {
	tmpl, err := domain.ParseTemplate("env!(SERVICE_URL)")
	require.NoError(t, err)

	require.Len(t, tmpl, 1)
	assert.True(t, tmpl[0].IsEnv)
	assert.Equal(t, "SERVICE_URL", tmpl[0].Env)
	assert.True(t, tmpl.HasEnvRefs())
}

func TestParseTemplate_MixedFragments(t *testing.T) {
	tmpl, err := domain.ParseTemplate("https://env!(HOST):env!(PORT)/load")
	require.NoError(t, err)

	require.Len(t, tmpl, 5)
	assert.Equal(t, "https://", tmpl[0].Literal)
	assert.Equal(t, "HOST", tmpl[1].Env)
	assert.Equal(t, ":", tmpl[2].Literal)
	assert.Equal(t, "PORT", tmpl[3].Env)
	assert.Equal(t, "/load", tmpl[4].Literal)
}

func TestParseTemplate_Unterminated(t *testing.T) {
	_, err := domain.ParseTemplate("env!(SERVICE_URL/load")
	require.Error(t, err)

	var syntaxErr *domain.InvalidEnvSyntaxError
	require.ErrorAs(t, err, &syntaxErr)
	assert.Contains(t, syntaxErr.Error(), "env!(SERVICE_URL/load")
}

func TestParseTemplate_EmptyString(t *testing.T) {
	tmpl, err := domain.ParseTemplate("")
	require.NoError(t, err)
	require.Len(t, tmpl, 1)
	assert.Equal(t, "", tmpl[0].Literal)
}

func TestTemplate_String_RoundTrips(t *testing.T) {
	for _, src := range []string{
		"plain",
		"env!(A)",
		"pre env!(A) mid env!(B) post",
		"env!(A)env!(B)",
	} {
		tmpl, err := domain.ParseTemplate(src)
		require.NoError(t, err, src)
		assert.Equal(t, src, tmpl.String())
	}
}

func TestTemplate_String_NeverShowsValues(t *testing.T) {
	tmpl, err := domain.ParseTemplate("key=env!(SECRET)")
	require.NoError(t, err)
	assert.Equal(t, "key=env!(SECRET)", tmpl.String())
}
