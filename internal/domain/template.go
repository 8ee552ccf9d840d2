package domain

import "strings"

const envRefOpen = "env!("

// Fragment is one piece of a parsed text template: either literal text or an
// env!(NAME) reference. Exactly one of the two fields is set; an env fragment
// has IsEnv true even when the variable name is empty.
type Fragment struct {
	Literal string
	Env     string
	IsEnv   bool
}

// Template is a text value split into literal and env!(NAME) fragments, in
// source order. Resolution substitutes every env fragment and concatenates.
type Template []Fragment

// ParseTemplate splits s around env!(NAME) references. An env!( with no
// closing parenthesis is a syntax error.
func ParseTemplate(s string) (Template, error) {
	var t Template
	for {
		i := strings.Index(s, envRefOpen)
		if i < 0 {
			break
		}
		if i > 0 {
			t = append(t, Fragment{Literal: s[:i]})
		}
		rest := s[i+len(envRefOpen):]
		j := strings.IndexByte(rest, ')')
		if j < 0 {
			return nil, &InvalidEnvSyntaxError{Text: s}
		}
		t = append(t, Fragment{Env: rest[:j], IsEnv: true})
		s = rest[j+1:]
	}
	if s != "" || len(t) == 0 {
		t = append(t, Fragment{Literal: s})
	}
	return t, nil
}

// HasEnvRefs reports whether the template depends on the environment.
func (t Template) HasEnvRefs() bool {
	for _, f := range t {
		if f.IsEnv {
			return true
		}
	}
	return false
}

// String reassembles the source form of the template, for logs and errors.
// Env references render as env!(NAME), never as their resolved values.
func (t Template) String() string {
	var b strings.Builder
	for _, f := range t {
		if f.IsEnv {
			b.WriteString(envRefOpen)
			b.WriteString(f.Env)
			b.WriteByte(')')
		} else {
			b.WriteString(f.Literal)
		}
	}
	return b.String()
}
