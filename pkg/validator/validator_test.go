package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email    string `validate:"required,email"`
	Phone    string `validate:"required,phone"`
	Currency string `validate:"omitempty,currency"`
	Name     string `validate:"required,min=3,singleline"`
}

func TestValidate(t *testing.T) {
	ok := sample{Email: "a@b.io", Phone: "+1 (555) 010-2000", Currency: "USD", Name: "Gala"}
	require.NoError(t, Validate(context.Background(), ok))

	tests := []struct {
		name  string
		mut   func(s *sample)
		field string
		msg   string
	}{
		{"missing email", func(s *sample) { s.Email = "" }, "sample.Email", ErrFieldRequired},
		{"bad email", func(s *sample) { s.Email = "nope" }, "sample.Email", ErrInvalidEmail},
		{"bad phone", func(s *sample) { s.Phone = "call me" }, "sample.Phone", ErrInvalidFormat},
		{"lowercase currency", func(s *sample) { s.Currency = "usd" }, "sample.Currency", ErrInvalidFormat},
		{"short name", func(s *sample) { s.Name = "ab" }, "sample.Name", ErrFieldBelowMinLen},
		{"multiline name", func(s *sample) { s.Name = "Gig\r\nBcc: x@example.com" }, "sample.Name", ErrInvalidFormat},
		{"tab in name", func(s *sample) { s.Name = "Gala\tNight" }, "sample.Name", ErrInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ok
			tt.mut(&s)
			err := Validate(context.Background(), s)
			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
			assert.Equal(t, tt.msg, fe.Message)
		})
	}
}

func TestEmptyCurrencyIsOptional(t *testing.T) {
	s := sample{Email: "a@b.io", Phone: "5550102000", Name: "Gala"}
	assert.NoError(t, Validate(context.Background(), s))
}
