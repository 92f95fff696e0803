package forum

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostForm(t *testing.T) {
	form := ParsePostForm(url.Values{"message": {"  Hello, world!\n"}})
	assert.True(t, form.Validate())
	assert.Equal(t, "Hello, world!", form.Message)

	form = ParsePostForm(url.Values{})
	assert.False(t, form.Validate())
	assert.Equal(t, "This field is required.", form.Errors.Get("message"))

	form = ParsePostForm(url.Values{"message": {strings.Repeat("x", MaxMessageLength+1)}})
	assert.False(t, form.Validate())
	assert.Contains(t, form.Errors.Get("message"), "at most 4000 characters")
}

func TestNewTopicForm(t *testing.T) {
	form := ParseNewTopicForm(url.Values{"subject": {"Hello"}, "message": {"First!"}})
	assert.True(t, form.Validate())

	form = ParseNewTopicForm(url.Values{"subject": {strings.Repeat("s", MaxSubjectLength+1)}})
	assert.False(t, form.Validate())
	assert.NotEmpty(t, form.Errors["subject"])
	assert.NotEmpty(t, form.Errors["message"])
}

func TestSignupForm(t *testing.T) {
	valid := url.Values{
		"username":  {"john"},
		"email":     {"john@doe.com"},
		"password1": {"abcdef123456"},
		"password2": {"abcdef123456"},
	}
	assert.True(t, ParseSignupForm(valid).Validate())

	tests := []struct {
		name  string
		field string
		value string
	}{
		{"missing username", "username", ""},
		{"username with spaces", "username", "john doe"},
		{"bad email", "email", "john.doe.com"},
		{"short password", "password1", "abc"},
		{"mismatch", "password2", "abcdef654321"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := url.Values{}
			for k, v := range valid {
				values[k] = v
			}
			values.Set(tt.field, tt.value)
			form := ParseSignupForm(values)
			assert.False(t, form.Validate())
			assert.NotEmpty(t, form.Errors[tt.field])
		})
	}
}

func TestLoginForm(t *testing.T) {
	form := ParseLoginForm(url.Values{"username": {"john"}, "password": {"123"}, "next": {"/boards/1/"}})
	assert.True(t, form.Validate())
	assert.Equal(t, "/boards/1/", form.Next)

	form = ParseLoginForm(url.Values{})
	assert.False(t, form.Validate())
	assert.Len(t, form.Errors, 2)
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/boards/1/", safeNext("/boards/1/"))
	assert.Empty(t, safeNext(""))
	assert.Empty(t, safeNext("//evil.example"))
	assert.Empty(t, safeNext("https://evil.example/"))
	assert.Empty(t, safeNext("/\\evil.example"))
}
