package crypto

import (
	"context"
	"strings"
)

const plainPrefix = "plain:"

// PlainEncryptor implements Encryptor for DEV_MODE and tests. It only tags the
// value so a stored token is recognisable as unencrypted.
type PlainEncryptor struct{}

func NewPlainEncryptor() *PlainEncryptor {
	return &PlainEncryptor{}
}

func (PlainEncryptor) Encrypt(_ context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return plainPrefix + plaintext, nil
}

func (PlainEncryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	return strings.TrimPrefix(ciphertext, plainPrefix), nil
}
