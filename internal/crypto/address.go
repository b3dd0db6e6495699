package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// ErrInvalidKey is returned for keys that are not 32 hex encoded bytes on secp256k1
var ErrInvalidKey = errors.New("invalid private key")

// ParsePrivateKey decodes a hex private key, with or without 0x prefix
func ParsePrivateKey(secretKey string) (*ecdsa.PrivateKey, error) {
	h := strings.TrimSpace(secretKey)
	if len(h) >= 2 && (h[0:2] == "0x" || h[0:2] == "0X") {
		h = h[2:]
	}
	if len(h) != 64 {
		return nil, fmt.Errorf("%w: got %d hex chars, want 64", ErrInvalidKey, len(h))
	}
	key, err := ethcrypto.HexToECDSA(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// PublicKeyToAddress returns the EIP-55 checksummed address of a public key.
// The address is the last 20 bytes of keccak256 over the uncompressed point
// without its 0x04 marker.
func PublicKeyToAddress(pub *ecdsa.PublicKey) string {
	raw := ethcrypto.FromECDSAPub(pub)
	hash := keccak256Bytes(raw[1:])
	return toChecksumAddress(hash[12:])
}

// ---- helpers ----

func keccak256Bytes(b ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, part := range b {
		_, _ = h.Write(part)
	}
	return h.Sum(nil)
}

// toChecksumAddress converts 20-byte address to EIP-55 checksummed string.
func toChecksumAddress(addr20 []byte) string {
	if len(addr20) != 20 {
		panic(errors.New("address must be 20 bytes"))
	}
	hexLower := hex.EncodeToString(addr20) // lowercase
	hash := keccak256Bytes([]byte(hexLower))
	var out strings.Builder
	out.Grow(2 + 40)
	out.WriteString("0x")
	for i, c := range hexLower {
		if c >= '0' && c <= '9' {
			out.WriteByte(byte(c))
			continue
		}
		// each nibble of the hash decides case of corresponding hex char
		n := (hash[i/2] >> uint(4*(1-i%2))) & 0xF
		if n >= 8 {
			out.WriteByte(byte(c) - 'a' + 'A')
		} else {
			out.WriteByte(byte(c))
		}
	}
	return out.String()
}
