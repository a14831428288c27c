package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	hexKey, err := GenerateMasterKey()
	require.NoError(t, err)
	require.Len(t, hexKey, 64)

	enc, err := NewEncryptorFromHex(hexKey)
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY"))
	require.NoError(t, err)

	plaintext, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY", string(plaintext))
}

func TestNewEncryptorRejectsBadKeys(t *testing.T) {
	_, err := NewEncryptor([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = NewEncryptorFromHex("not-hex")
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = NewEncryptorFromHex("abcd")
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	hexKey, err := GenerateMasterKey()
	require.NoError(t, err)
	enc, err := NewEncryptorFromHex(hexKey)
	require.NoError(t, err)

	_, err = enc.Decrypt("!!!not base64!!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = enc.Decrypt("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	ciphertext, err := enc.Encrypt([]byte("secret"))
	require.NoError(t, err)

	otherKey, err := GenerateMasterKey()
	require.NoError(t, err)
	other, err := NewEncryptorFromHex(otherKey)
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestGeneratedKeyShapes(t *testing.T) {
	id, err := GenerateAccessKeyID()
	require.NoError(t, err)
	assert.Len(t, id, AccessKeyIDLength)

	secret, err := GenerateSecretKey()
	require.NoError(t, err)
	assert.Len(t, secret, SecretKeyLength)
}
