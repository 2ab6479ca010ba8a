package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/smallbiznis/lunara/internal/credential/domain"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealVersion = 1
	keyInfo     = "lunara/data-source-credentials/v1"
)

type sealedPayload struct {
	Version    int    `json:"version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type sealer struct {
	key *[32]byte
}

// newSealer derives the box key from secret. An empty secret yields a sealer
// that refuses to seal or open.
func newSealer(secret string) (*sealer, error) {
	if secret == "" {
		return &sealer{}, nil
	}
	var key [32]byte
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(reader, key[:]); err != nil {
		return nil, err
	}
	return &sealer{key: &key}, nil
}

func (s *sealer) seal(secret map[string]any) (string, error) {
	if s.key == nil {
		return "", domain.ErrEncryptionKeyMissing
	}
	payload, err := json.Marshal(secret)
	if err != nil {
		return "", domain.ErrInvalidSecret
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nil, payload, &nonce, s.key)

	out, err := json.Marshal(sealedPayload{
		Version:    sealVersion,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce[:]),
		Ciphertext: base64.RawStdEncoding.EncodeToString(box),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (s *sealer) open(sealed string) (map[string]any, error) {
	if s.key == nil {
		return nil, domain.ErrEncryptionKeyMissing
	}

	var envelope sealedPayload
	if err := json.Unmarshal([]byte(sealed), &envelope); err != nil || envelope.Version != sealVersion {
		return nil, domain.ErrCorrupted
	}
	nonceBytes, err := base64.RawStdEncoding.DecodeString(envelope.Nonce)
	if err != nil || len(nonceBytes) != 24 {
		return nil, domain.ErrCorrupted
	}
	box, err := base64.RawStdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return nil, domain.ErrCorrupted
	}

	var nonce [24]byte
	copy(nonce[:], nonceBytes)
	payload, ok := secretbox.Open(nil, box, &nonce, s.key)
	if !ok {
		return nil, domain.ErrCorrupted
	}

	var secret map[string]any
	if err := json.Unmarshal(payload, &secret); err != nil {
		return nil, domain.ErrCorrupted
	}
	return secret, nil
}
