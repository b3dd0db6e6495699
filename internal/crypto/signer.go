package crypto

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer derives addresses and signs personal messages from raw private keys
type Signer struct{}

// NewSigner creates a new signer
func NewSigner() *Signer {
	return &Signer{}
}

// DeriveAddress returns the checksummed address controlled by secretKey
func (s *Signer) DeriveAddress(secretKey string) (string, error) {
	key, err := ParsePrivateKey(secretKey)
	if err != nil {
		return "", err
	}
	return PublicKeyToAddress(&key.PublicKey), nil
}

// SignMessage produces a 65-byte personal_sign signature over message,
// hex encoded with 0x prefix and V in {27, 28}.
func (s *Signer) SignMessage(secretKey, message string) (string, error) {
	key, err := ParsePrivateKey(secretKey)
	if err != nil {
		return "", err
	}
	sig, err := ethcrypto.Sign(TextHash(message), key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// TextHash is the EIP-191 version 0x45 digest of message:
// keccak256("\x19Ethereum Signed Message:\n" + len(message) + message)
func TextHash(message string) []byte {
	prefix := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message))
	return keccak256Bytes([]byte(prefix), []byte(message))
}
