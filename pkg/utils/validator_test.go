package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/keystore/pkg/errors"
)

func TestValidateOwnerID(t *testing.T) {
	valid := []string{"bob", "alice@example.com", "名前", "first last", strings.Repeat("a", MaxOwnerIDLength)}
	for _, id := range valid {
		assert.NoError(t, ValidateOwnerID(id), id)
	}

	tests := map[string]string{
		"empty":         "",
		"too long":      strings.Repeat("a", MaxOwnerIDLength+1),
		"newline":       "bob\nalice",
		"nul":           "bob\x00",
		"invalid utf-8": "bob\xff",
	}
	for name, id := range tests {
		t.Run(name, func(t *testing.T) {
			err := ValidateOwnerID(id)
			assert.Error(t, err)
			kse, ok := errors.AsKeyStoreError(err)
			if assert.True(t, ok) {
				assert.Equal(t, "invalid_request", string(kse.Code()))
			}
		})
	}
}
