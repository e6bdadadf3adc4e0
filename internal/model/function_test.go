package model

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itstheanurag/fnrunner/internal/failure"
)

func TestNewDefinition_Defaults(t *testing.T) {
	def, err := NewDefinition("Hello World", "", "print(1)", LanguagePython, 0)
	require.NoError(t, err)

	assert.NotEmpty(t, def.ID)
	assert.Equal(t, "hello-world", def.Route)
	assert.Equal(t, DefaultTimeoutMS, def.TimeoutMS)
	assert.Equal(t, def.CreatedAt, def.UpdatedAt)
	assert.Equal(t, "30s", def.Timeout().String())
}

func TestNewDefinition_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		fnName  string
		route   string
		code    string
		lang    Language
		timeout int64
	}{
		{"missing name", "", "echo", "x", LanguageJavaScript, 0},
		{"bad route", "echo", "Echo Me", "x", LanguageJavaScript, 0},
		{"missing code", "echo", "echo", "", LanguageJavaScript, 0},
		{"unknown language", "echo", "echo", "x", Language("ruby"), 0},
		{"negative timeout", "echo", "echo", "x", LanguageJavaScript, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDefinition(tt.fnName, tt.route, tt.code, tt.lang, tt.timeout)
			require.Error(t, err)
			assert.True(t, errors.Is(err, failure.ErrInvalid))
		})
	}
}

func TestDefinitionPatch_Apply(t *testing.T) {
	def, err := NewDefinition("echo", "echo", "x", LanguageJavaScript, 1000)
	require.NoError(t, err)

	code := "y"
	timeout := int64(2000)
	next, err := DefinitionPatch{Code: &code, TimeoutMS: &timeout}.Apply(def)
	require.NoError(t, err)

	assert.Equal(t, "y", next.Code)
	assert.Equal(t, int64(2000), next.TimeoutMS)
	assert.Equal(t, "x", def.Code, "original must not change")
	assert.False(t, next.UpdatedAt.Before(def.UpdatedAt))

	lang := Language("cobol")
	_, err = DefinitionPatch{Language: &lang}.Apply(def)
	assert.True(t, errors.Is(err, failure.ErrInvalid))
}

func TestRequestBody(t *testing.T) {
	assert.JSONEq(t, `{}`, string(RequestBody(nil)))
	assert.JSONEq(t, `{"a":1}`, string(RequestBody([]byte(` {"a":1} `))))
	assert.JSONEq(t, `"plain text"`, string(RequestBody([]byte("plain text"))))
}

func TestInvocationContext_Marshal(t *testing.T) {
	raw, err := InvocationContext{Body: RequestBody([]byte(`{"a":1}`))}.Marshal()
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.ElementsMatch(t, []string{"body", "query", "params", "headers"}, keys(decoded))
	assert.JSONEq(t, `{"a":1}`, string(decoded["body"]))
	assert.JSONEq(t, `{}`, string(decoded["query"]))
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
