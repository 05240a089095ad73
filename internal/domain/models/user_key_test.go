package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keystore/pkg/constants"
)

func sampleKeyPair() *UserKeyPair {
	return &UserKeyPair{
		OwnerID:     "bob",
		PublicKey:   "ssh-rsa AAAAB3NzaC1yc2E bob",
		PrivateKey:  []byte("sealed-private-bytes"),
		Fingerprint: "SHA256:abc",
		Bits:        2048,
		Format:      constants.PrivateKeyFormatPKCS1,
		CreatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestUserKeyPair_CloneIsDeep(t *testing.T) {
	orig := sampleKeyPair()
	c := orig.Clone()

	require.Equal(t, orig, c)
	c.PrivateKey[0] = 'X'
	c.PublicKey = "changed"
	assert.Equal(t, byte('s'), orig.PrivateKey[0])
	assert.Equal(t, "ssh-rsa AAAAB3NzaC1yc2E bob", orig.PublicKey)

	var nilPair *UserKeyPair
	assert.Nil(t, nilPair.Clone())
}

func TestUserKeyPair_FormattingHidesPrivateKey(t *testing.T) {
	k := sampleKeyPair()

	for _, s := range []string{k.String(), fmt.Sprintf("%v", k), fmt.Sprintf("%#v", k), fmt.Sprintf("%+v", k)} {
		assert.NotContains(t, s, "sealed-private-bytes")
		assert.Contains(t, s, "SHA256:abc")
	}
}

func TestUserKeyPair_PublicView(t *testing.T) {
	view := sampleKeyPair().PublicView()

	assert.Equal(t, "SHA256:abc", view.ID)
	assert.Equal(t, "bob", view.OwnerID)
	assert.Equal(t, "ssh-rsa AAAAB3NzaC1yc2E bob", view.PublicKey)
	assert.Equal(t, "user_keys", UserKeyPair{}.TableName())
}

func TestKeyEventBuilders(t *testing.T) {
	e := NewKeyEvent(constants.KeyEventGenerated, "bob", "bob").
		WithTransition(KeyStateAbsent, KeyStatePresent).
		WithFingerprint("SHA256:abc")

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, KeyStateAbsent, e.From)
	assert.Equal(t, KeyStatePresent, e.To)
	assert.Equal(t, "SHA256:abc", e.Fingerprint)
	assert.WithinDuration(t, time.Now(), e.Timestamp, time.Minute)

	denied := NewKeyEvent(constants.KeyEventAccessDenied, "bob", "alice").WithReason("forbidden")
	assert.Equal(t, "forbidden", denied.Reason)
	assert.NotEqual(t, e.ID, denied.ID)
}
