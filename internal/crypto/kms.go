package crypto

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// Encryptor seals and opens refresh tokens kept at rest.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// KMSAPI is the subset of *kms.Client used by KMSEncryptor.
type KMSAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSEncryptor implements Encryptor with an AWS KMS key.
// Every ciphertext is bound to the token purpose through the encryption context.
type KMSEncryptor struct {
	client KMSAPI
	keyID  string
}

var tokenEncryptionContext = map[string]string{"purpose": "spotify-refresh-token"}

// NewKMSEncryptor creates a KMSEncryptor.
// keyID can be a key ID, key ARN, or alias name (e.g., "alias/wrapped-token-key").
func NewKMSEncryptor(client KMSAPI, keyID string) *KMSEncryptor {
	return &KMSEncryptor{client: client, keyID: keyID}
}

// Encrypt returns the base64 encoded ciphertext of plaintext.
func (e *KMSEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	out, err := e.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(e.keyID),
		Plaintext:         []byte(plaintext),
		EncryptionContext: tokenEncryptionContext,
	})
	if err != nil {
		return "", fmt.Errorf("kms encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

// Decrypt reverses Encrypt.
func (e *KMSEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	out, err := e.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    blob,
		KeyId:             aws.String(e.keyID),
		EncryptionContext: tokenEncryptionContext,
	})
	if err != nil {
		return "", fmt.Errorf("kms decrypt: %w", err)
	}
	return string(out.Plaintext), nil
}
