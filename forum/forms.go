package forum

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	MaxSubjectLength = 255
	MaxMessageLength = 4000
	MinPasswordLen   = 8
)

// FormErrors maps a field name to its validation messages. The empty key
// holds errors that belong to the form as a whole.
type FormErrors map[string][]string

func (e FormErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Get returns the first message for field, for templates.
func (e FormErrors) Get(field string) string {
	if msgs := e[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (e FormErrors) Any() bool {
	return len(e) > 0
}

func required(errs FormErrors, field, value string) {
	if value == "" {
		errs.Add(field, "This field is required.")
	}
}

func maxLength(errs FormErrors, field, value string, n int) {
	if l := utf8.RuneCountInString(value); l > n {
		errs.Add(field, fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", n, l))
	}
}

// PostForm carries the message of a reply or an edited post.
type PostForm struct {
	Message string
	Errors  FormErrors
}

func ParsePostForm(values url.Values) *PostForm {
	return &PostForm{Message: strings.TrimSpace(values.Get("message"))}
}

func (f *PostForm) Validate() bool {
	f.Errors = FormErrors{}
	required(f.Errors, "message", f.Message)
	maxLength(f.Errors, "message", f.Message, MaxMessageLength)
	return !f.Errors.Any()
}

// NewTopicForm carries a topic subject and its opening message.
type NewTopicForm struct {
	Subject string
	Message string
	Errors  FormErrors
}

func ParseNewTopicForm(values url.Values) *NewTopicForm {
	return &NewTopicForm{
		Subject: strings.TrimSpace(values.Get("subject")),
		Message: strings.TrimSpace(values.Get("message")),
	}
}

func (f *NewTopicForm) Validate() bool {
	f.Errors = FormErrors{}
	required(f.Errors, "subject", f.Subject)
	maxLength(f.Errors, "subject", f.Subject, MaxSubjectLength)
	required(f.Errors, "message", f.Message)
	maxLength(f.Errors, "message", f.Message, MaxMessageLength)
	return !f.Errors.Any()
}

type SignupForm struct {
	Username     string
	Email        string
	Password     string
	Confirmation string
	Errors       FormErrors
}

func ParseSignupForm(values url.Values) *SignupForm {
	return &SignupForm{
		Username:     strings.TrimSpace(values.Get("username")),
		Email:        strings.TrimSpace(values.Get("email")),
		Password:     values.Get("password1"),
		Confirmation: values.Get("password2"),
	}
}

func (f *SignupForm) Validate() bool {
	f.Errors = FormErrors{}
	required(f.Errors, "username", f.Username)
	maxLength(f.Errors, "username", f.Username, 150)
	if strings.ContainsAny(f.Username, " \t/?#") {
		f.Errors.Add("username", "Enter a valid username.")
	}
	required(f.Errors, "email", f.Email)
	if f.Email != "" && !strings.Contains(f.Email, "@") {
		f.Errors.Add("email", "Enter a valid email address.")
	}
	required(f.Errors, "password1", f.Password)
	if f.Password != "" && utf8.RuneCountInString(f.Password) < MinPasswordLen {
		f.Errors.Add("password1", fmt.Sprintf("This password is too short. It must contain at least %d characters.", MinPasswordLen))
	}
	if f.Password != f.Confirmation {
		f.Errors.Add("password2", "The two password fields didn't match.")
	}
	return !f.Errors.Any()
}

type LoginForm struct {
	Username string
	Password string
	Next     string
	Errors   FormErrors
}

func ParseLoginForm(values url.Values) *LoginForm {
	return &LoginForm{
		Username: strings.TrimSpace(values.Get("username")),
		Password: values.Get("password"),
		Next:     values.Get("next"),
	}
}

func (f *LoginForm) Validate() bool {
	f.Errors = FormErrors{}
	required(f.Errors, "username", f.Username)
	required(f.Errors, "password", f.Password)
	return !f.Errors.Any()
}
