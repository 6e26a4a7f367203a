// Package envelope encodes message bodies according to their security level.
//
// Level none passes content through untouched. The other levels wrap it in
// an envelope string "pv1:<level>:<sender>:<payload>": basic is a base64
// obfuscation, signed adds an HMAC-SHA256 tag, and encrypted seals the body
// with NaCl secretbox. Signing and sealing keys are derived per agent pair
// with HKDF from one shared secret, so only the two participants can verify
// or open an envelope. Callers never inspect envelope internals; decode
// failures of any kind surface as ErrDecryptionFailure.
package envelope
