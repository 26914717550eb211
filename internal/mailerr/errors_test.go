package mailerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindConfiguration, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindDelivery, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.kind, "x").HTTPStatus())
		})
	}
}

func TestValidationListsEveryViolation(t *testing.T) {
	err := multierr.Combine(errors.New("'to' is missing"), errors.New("'text' is missing"))

	v := Validation("mail content invalid", err)
	assert.Equal(t, KindValidation, v.Kind)
	assert.Equal(t, []string{"'to' is missing", "'text' is missing"}, v.Violations)
	assert.Equal(t, "mail content invalid: 'to' is missing; 'text' is missing", v.Error())
}

func TestIsSeesThroughWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("loading: %w", Wrap(KindInternal, cause, "query failed"))

	assert.True(t, Is(err, KindInternal))
	assert.False(t, Is(err, KindNotFound))
	assert.ErrorIs(t, err, cause)
	assert.False(t, Is(cause, KindInternal))
}
