package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rooftopdev/accountd/internal/apperr"
)

func TestViolationsAggregateAllFields(t *testing.T) {
	v := New()
	v.Required("email", "")
	v.Required("password", "")
	v.Required("firstName", "Jane")

	err := v.Err()
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	fields := apperr.FieldsOf(err)
	assert.Len(t, fields, 2)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestViolationsCleanInputPasses(t *testing.T) {
	v := New()
	v.Required("email", "jane@example.com")
	v.Email("email", "jane@example.com")
	v.MinLen("password", "s3cretpass", 8)
	v.MaxLen("password", "s3cretpass", 72)

	assert.NoError(t, v.Err())
}

func TestViolationsFirstMessageWins(t *testing.T) {
	v := New()
	v.Required("email", "   ")
	v.Email("email", "   ")

	fields := apperr.FieldsOf(v.Err())
	require.Len(t, fields, 1)
	assert.Equal(t, "email is required", fields["email"])
}

func TestEmailShape(t *testing.T) {
	bad := []string{"plainaddress", "missing@tld", "@nouser.com", "two words@x.io"}
	for _, s := range bad {
		v := New()
		v.Email("email", s)
		assert.Error(t, v.Err(), s)
	}

	good := []string{"jane@example.com", "a.b+c@sub.domain.io"}
	for _, s := range good {
		v := New()
		v.Email("email", s)
		assert.NoError(t, v.Err(), s)
	}
}

func TestEmailSkipsEmpty(t *testing.T) {
	v := New()
	v.Email("email", "")
	assert.NoError(t, v.Err(), "empty is Required's job")
}

func TestLengthBounds(t *testing.T) {
	v := New()
	v.MinLen("password", "short", 8)
	assert.Error(t, v.Err())

	v = New()
	v.MaxLen("firstName", "ééééé", 5)
	assert.NoError(t, v.Err(), "length counts runes, not bytes")
}
