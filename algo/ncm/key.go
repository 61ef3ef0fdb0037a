package ncm

import (
	"bytes"
	"crypto/aes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"ncmdump.dev/cli/internal/simd"
)

// The two master keys are protocol constants baked into the format. They
// must stay byte-identical to the original encoder's, otherwise every key
// or metadata recovery fails.
var (
	coreKey = []byte{
		0x68, 0x7A, 0x48, 0x52, 0x41, 0x6D, 0x73, 0x6F,
		0x35, 0x6B, 0x49, 0x6E, 0x62, 0x61, 0x78, 0x57,
	}
	metaKey = []byte{
		0x23, 0x31, 0x34, 0x6C, 0x6A, 0x6B, 0x5F, 0x21,
		0x5C, 0x5D, 0x26, 0x30, 0x55, 0x3C, 0x27, 0x28,
	}
)

const (
	keyMask  = 0x64
	metaMask = 0x63

	keyPrefix  = "neteasecloudmusic"
	metaMarker = "163 key(Don't modify):"
	metaPrefix = "music:"
)

var (
	// ErrKeyRecovery indicates the key section could not be decrypted with
	// the core master key. Fatal: almost certainly a wrong format version
	// or a corrupt file, never recoverable by retry.
	ErrKeyRecovery = errors.New("ncm: key recovery failed")

	// ErrMetadataDecode indicates the metadata blob could not be decoded.
	// Non-fatal: audio recovery proceeds with empty metadata.
	ErrMetadataDecode = errors.New("ncm: metadata decode failed")
)

// decryptAES128ECB decrypts data block by block and strips PKCS#7 padding.
// Trailing bytes beyond the last full block are ignored.
func decryptAES128ECB(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	data = data[:len(data)/aes.BlockSize*aes.BlockSize]
	if len(data) == 0 {
		return nil, errors.New("no complete cipher block")
	}

	plain := make([]byte, len(data))
	for i := 0; i < len(data); i += aes.BlockSize {
		block.Decrypt(plain[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}
	return unpadPKCS7(plain)
}

func unpadPKCS7(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid pkcs7 padding length %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid pkcs7 padding bytes")
		}
	}
	return data[:len(data)-n], nil
}

// decryptKeyBlob recovers the raw audio key from the key section: undo the
// 0x64 XOR mask, AES-ECB decrypt with the core master key, drop the fixed
// ASCII prefix. Never partially succeeds.
func decryptKeyBlob(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty key section", ErrKeyRecovery)
	}

	masked := make([]byte, len(raw))
	copy(masked, raw)
	simd.XORConst(masked, keyMask)

	plain, err := decryptAES128ECB(coreKey, masked)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyRecovery, err)
	}
	if len(plain) <= len(keyPrefix) || !bytes.HasPrefix(plain, []byte(keyPrefix)) {
		return nil, fmt.Errorf("%w: unexpected key plaintext", ErrKeyRecovery)
	}
	return plain[len(keyPrefix):], nil
}

// decryptMetaBlob recovers the JSON metadata record from the metadata
// section. A missing section or marker yields (nil, nil): some files simply
// carry no metadata.
func decryptMetaBlob(raw []byte) (*Meta, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	masked := make([]byte, len(raw))
	copy(masked, raw)
	simd.XORConst(masked, metaMask)

	if !bytes.HasPrefix(masked, []byte(metaMarker)) {
		return nil, nil
	}

	cipherText, err := base64.StdEncoding.DecodeString(string(masked[len(metaMarker):]))
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMetadataDecode, err)
	}

	plain, err := decryptAES128ECB(metaKey, cipherText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataDecode, err)
	}
	if !bytes.HasPrefix(plain, []byte(metaPrefix)) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrMetadataDecode, metaPrefix)
	}

	meta := &Meta{}
	if err := json.Unmarshal(plain[len(metaPrefix):], meta); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrMetadataDecode, err)
	}
	return meta, nil
}
