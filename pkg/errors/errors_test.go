package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	err := Clone(ErrNotFound, "term not found")

	assert.Equal(t, "term not found", err.Message)
	assert.Equal(t, "resource not found", ErrNotFound.Message)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Nil(t, Clone(nil, "x"))
}

func TestWrapUnwraps(t *testing.T) {
	err := Wrap(sql.ErrConnDone, ErrInternal.Code, ErrInternal.Status, "load schema")

	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, "load schema: "+sql.ErrConnDone.Error(), err.Error())
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	wrapped := fmt.Errorf("compute: %w", Clone(ErrNonFiniteScore, "2 results"))
	got := FromError(wrapped)
	assert.Equal(t, http.StatusUnprocessableEntity, got.Status)
	assert.Equal(t, "2 results", got.Message)

	plain := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, plain.Code)
	assert.Equal(t, http.StatusInternalServerError, plain.Status)
}

func TestNilErrorMethods(t *testing.T) {
	var e *Error
	assert.Equal(t, "<nil>", e.Error())
	assert.Nil(t, e.Unwrap())
}
