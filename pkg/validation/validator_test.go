package validation

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,pwd"`
	Confirm  string `json:"confirm_password" validate:"required,eqfield=Password"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	Register(v)
	return v
}

func TestToDetails(t *testing.T) {
	v := newValidator()
	tests := []struct {
		name string
		in   signup
		want map[string]string
	}{
		{
			name: "valid",
			in:   signup{Email: "a@b.com", Username: "alice_1", Password: "Str0ng!Pass", Confirm: "Str0ng!Pass"},
		},
		{
			name: "missing fields",
			in:   signup{},
			want: map[string]string{
				"email":            "is required",
				"username":         "is required",
				"password":         "is required",
				"confirm_password": "is required",
			},
		},
		{
			name: "bad values",
			in:   signup{Email: "nope", Username: "a b", Password: "short", Confirm: "other"},
			want: map[string]string{
				"email":            "must be a valid email",
				"username":         "must be 3-50 characters of letters, digits or underscore",
				"password":         "must be between 8 and 128 characters long",
				"confirm_password": "must be equal to Password field",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToDetails(v.Struct(tt.in)))
		})
	}
}

func TestToDetails_InvalidJSON(t *testing.T) {
	var dst signup
	err := json.Unmarshal([]byte(`{"email":`), &dst)
	assert.Equal(t, map[string]string{"payload": "invalid json"}, ToDetails(err))

	err = json.Unmarshal([]byte(`{"email":42}`), &dst)
	assert.Equal(t, map[string]string{"payload": "invalid json"}, ToDetails(err))
}
