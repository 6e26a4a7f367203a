// ABOUTME: Message body encoding for the four security levels
// ABOUTME: Shared-secret HKDF per agent pair, secretbox for the encrypted level

package envelope

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/2389/parley/internal/store"
)

// ErrDecryptionFailure is returned when an envelope fails its signature or
// content check, including envelopes addressed to a different recipient.
var ErrDecryptionFailure = errors.New("decryption failure")

// envelopePrefix marks an encoded body. Level none produces no envelope at
// all, so decode treats unprefixed input as plaintext.
const envelopePrefix = "pv1"

const keySize = 32

// Codec encodes and decodes message bodies. Keys are derived per agent
// pair from one process-wide secret, so either participant can decode what
// the other encoded; anyone else derives a different key and fails.
type Codec struct {
	secret []byte
}

// NewCodec creates a codec from the shared envelope secret.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("envelope secret must not be empty")
	}
	c := &Codec{secret: make([]byte, len(secret))}
	copy(c.secret, secret)
	return c, nil
}

// pairKey derives the symmetric key for a sender/recipient pair. The pair
// is sorted first so both directions derive the same key.
func (c *Codec) pairKey(a, b string) [keySize]byte {
	if b < a {
		a, b = b, a
	}
	info := fmt.Sprintf("parley-envelope:%s|%s", a, b)

	var key [keySize]byte
	r := hkdf.New(sha256.New, c.secret, nil, []byte(info))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		// Only reachable if SHA-256 misbehaves.
		panic(fmt.Sprintf("envelope key derivation: %v", err))
	}
	return key
}

func b64(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

func unb64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// Encode wraps content for the given security level. Level none returns the
// content untouched; everything else produces an envelope of the form
// "pv1:<level>:<sender-b64>:<payload>".
func (c *Codec) Encode(content, senderID, recipientID string, level store.SecurityLevel) (string, error) {
	switch level {
	case store.SecurityNone:
		return content, nil

	case store.SecurityBasic:
		return c.seal(level, senderID, b64([]byte(content))), nil

	case store.SecuritySigned:
		key := c.pairKey(senderID, recipientID)
		mac := hmac.New(sha256.New, key[:])
		mac.Write([]byte(content))
		payload := b64(mac.Sum(nil)) + "." + b64([]byte(content))
		return c.seal(level, senderID, payload), nil

	case store.SecurityEncrypted:
		key := c.pairKey(senderID, recipientID)
		var nonce [24]byte
		if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
			return "", fmt.Errorf("generate nonce: %w", err)
		}
		box := secretbox.Seal(nonce[:], []byte(content), &nonce, &key)
		return c.seal(level, senderID, b64(box)), nil

	default:
		return "", fmt.Errorf("unknown security level %q", level)
	}
}

func (c *Codec) seal(level store.SecurityLevel, senderID, payload string) string {
	return strings.Join([]string{envelopePrefix, string(level), b64([]byte(senderID)), payload}, ":")
}

// Decode unwraps an envelope for the given recipient. Plaintext input
// passes through unchanged. A failed signature or content check, a
// malformed envelope, or an envelope keyed for someone else all return
// ErrDecryptionFailure.
func (c *Codec) Decode(envelope, recipientID string) (string, error) {
	if !strings.HasPrefix(envelope, envelopePrefix+":") {
		return envelope, nil
	}

	parts := strings.SplitN(envelope, ":", 4)
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: malformed envelope", ErrDecryptionFailure)
	}

	level, ok := store.ParseSecurityLevel(parts[1])
	if !ok {
		return "", fmt.Errorf("%w: unknown level %q", ErrDecryptionFailure, parts[1])
	}
	senderRaw, err := unb64(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad sender field", ErrDecryptionFailure)
	}
	senderID := string(senderRaw)
	payload := parts[3]

	switch level {
	case store.SecurityNone:
		// Level none never produces an envelope; treat one as tampering.
		return "", fmt.Errorf("%w: unexpected envelope for level none", ErrDecryptionFailure)

	case store.SecurityBasic:
		raw, err := unb64(payload)
		if err != nil {
			return "", fmt.Errorf("%w: bad payload encoding", ErrDecryptionFailure)
		}
		return string(raw), nil

	case store.SecuritySigned:
		sig, body, found := strings.Cut(payload, ".")
		if !found {
			return "", fmt.Errorf("%w: malformed signed payload", ErrDecryptionFailure)
		}
		wantMAC, err := unb64(sig)
		if err != nil {
			return "", fmt.Errorf("%w: bad signature encoding", ErrDecryptionFailure)
		}
		raw, err := unb64(body)
		if err != nil {
			return "", fmt.Errorf("%w: bad payload encoding", ErrDecryptionFailure)
		}
		key := c.pairKey(senderID, recipientID)
		mac := hmac.New(sha256.New, key[:])
		mac.Write(raw)
		if !hmac.Equal(mac.Sum(nil), wantMAC) {
			return "", fmt.Errorf("%w: signature mismatch", ErrDecryptionFailure)
		}
		return string(raw), nil

	case store.SecurityEncrypted:
		box, err := unb64(payload)
		if err != nil {
			return "", fmt.Errorf("%w: bad payload encoding", ErrDecryptionFailure)
		}
		if len(box) < 24 {
			return "", fmt.Errorf("%w: truncated ciphertext", ErrDecryptionFailure)
		}
		var nonce [24]byte
		copy(nonce[:], box[:24])
		key := c.pairKey(senderID, recipientID)
		raw, ok := secretbox.Open(nil, box[24:], &nonce, &key)
		if !ok {
			return "", fmt.Errorf("%w: ciphertext rejected", ErrDecryptionFailure)
		}
		return string(raw), nil

	default:
		return "", fmt.Errorf("%w: unknown level %q", ErrDecryptionFailure, level)
	}
}
