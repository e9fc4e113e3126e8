package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckStopsAtFirstFailure(t *testing.T) {
	errs := Errors{}
	errs.Check("username", Required(""), Length("", 2, 20))

	assert.True(t, errs.Any())
	assert.Len(t, errs["username"], 1)
	assert.Equal(t, "This field is required.", errs.Get("username"))
}

func TestCheckPasses(t *testing.T) {
	errs := Errors{}
	errs.Check("username", Required("alice"), Length("alice", 2, 20))

	assert.False(t, errs.Any())
	assert.Equal(t, "", errs.Get("username"))
}

func TestValidators(t *testing.T) {
	assert.NotEmpty(t, Length("a", 2, 20))
	assert.NotEmpty(t, Length("abcdefghijklmnopqrstu", 2, 20))
	assert.Empty(t, Length("ab", 2, 20))

	assert.Empty(t, Email("a@x.com"))
	assert.NotEmpty(t, Email("not-an-email"))
	assert.NotEmpty(t, Email("Alice <a@x.com>"))

	assert.Empty(t, EqualTo("pw", "pw", "password"))
	assert.Equal(t, "Field must be equal to password.", EqualTo("pw", "other", "password"))

	assert.Empty(t, MaxLength("short", 100))
	assert.NotEmpty(t, MaxLength("toolong", 3))

	assert.Empty(t, ExcludesAny("alice_2", "/?#"))
	assert.Equal(t, "Field cannot contain any of / ? #.", ExcludesAny("a/b", "/?#"))
}

func TestAllowedExtension(t *testing.T) {
	assert.Empty(t, AllowedExtension("me.JPG", "jpg", "jpeg", "png"))
	assert.Empty(t, AllowedExtension("me.png", "jpg", "jpeg", "png"))
	assert.NotEmpty(t, AllowedExtension("me.gif", "jpg", "jpeg", "png"))
	assert.NotEmpty(t, AllowedExtension("noext", "jpg"))
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Errors: Errors{"email": {"Invalid email address."}}}
	assert.Equal(t, "invalid form fields: email", err.Error())
}
