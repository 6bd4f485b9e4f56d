package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF info strings. One secret feeds two independent keys.
const (
	infoValueCipher = "docstore/value/aes-256-gcm/v1"
	infoFilterHash  = "docstore/filter/hmac-sha256/v1"
)

// envelopeMagic prefixes every sealed payload.
var envelopeMagic = []byte("dse1")

func deriveKey(secret, salt []byte, info string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}

func newAEAD(secret, salt []byte) (cipher.AEAD, error) {
	key, err := deriveKey(secret, salt, infoValueCipher)
	if err != nil {
		return nil, fmt.Errorf("derive value key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}

func (c *Codec) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, len(envelopeMagic)+len(nonce)+len(plain)+c.aead.Overhead())
	out = append(out, envelopeMagic...)
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, plain, nil), nil
}

func (c *Codec) open(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, envelopeMagic) {
		return nil, &Error{Kind: KindEncryption, Err: fmt.Errorf("payload is not sealed")}
	}
	data = data[len(envelopeMagic):]

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+c.aead.Overhead() {
		return nil, &Error{Kind: KindEncryption, Err: fmt.Errorf("ciphertext too short")}
	}

	plain, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, &Error{Kind: KindEncryption, Err: fmt.Errorf("decrypt: %w", err)}
	}
	return plain, nil
}
