package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize  = 16
	nonceSize = chacha20poly1305.NonceSize
)

// scrypt 参数。salt 随机，密钥按次派生。
func kdfParams() (N, r, p int) { return 1 << 15, 8, 1 }

// errCipherMismatch 表示密钥不匹配或密文被篡改。对调用方而言它与格式
// 校验失败同等对待，不提供更细的失败原因。
var errCipherMismatch = errors.New("wrong encryption secret or corrupted ciphertext")

// seal 用进程级密钥加密明文，输出 base64(salt || nonce || ciphertext)。
func seal(secret, plaintext []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	N, r, p := kdfParams()
	key, err := scrypt.Key(secret, salt, N, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	payload := make([]byte, 0, saltSize+nonceSize+len(plaintext)+aead.Overhead())
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = aead.Seal(payload, nonce, plaintext, salt)
	return base64.StdEncoding.EncodeToString(payload), nil
}

// open 解开 seal 产生的密文。任何结构或认证失败都归一为 errCipherMismatch。
func open(secret []byte, encoded string) ([]byte, error) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(payload) < saltSize+nonceSize {
		return nil, errCipherMismatch
	}
	salt := payload[:saltSize]
	nonce := payload[saltSize : saltSize+nonceSize]

	N, r, p := kdfParams()
	key, err := scrypt.Key(secret, salt, N, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, payload[saltSize+nonceSize:], salt)
	if err != nil {
		return nil, errCipherMismatch
	}
	return plaintext, nil
}
