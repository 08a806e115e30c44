package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x03}, KeyPrefixUpperBound([]byte{0x01, 0x02}))
	assert.Equal(t, []byte{0x02}, KeyPrefixUpperBound([]byte{0x01, 0xff}))
	assert.Nil(t, KeyPrefixUpperBound([]byte{0xff, 0xff}))
	assert.Nil(t, KeyPrefixUpperBound(nil))
}

func TestConcatBytes(t *testing.T) {
	assert.Equal(t, []byte("realmkey"), ConcatBytes([]byte("realm"), []byte("key")))
	assert.Empty(t, ConcatBytes())

	source := []byte("value")
	copied := CopyBytes(source)
	copied[0] = 'V'
	assert.Equal(t, []byte("value"), source)
	assert.Nil(t, CopyBytes(nil))
}
