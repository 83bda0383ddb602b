package identity

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/sha3"
)

// ErrInvalidSenderKey indicates a sender key that is not a base64 secp256k1 public key.
var ErrInvalidSenderKey = errors.New("identity: invalid sender public key")

// AddressFromSender derives the 0x-prefixed account address of a base64
// encoded secp256k1 sender key: the last 20 bytes of keccak256 over the
// uncompressed point without its prefix byte.
func AddressFromSender(senderPubkey string) (string, error) {
	raw, err := decodeSenderKey(senderPubkey)
	if err != nil {
		return "", err
	}
	publicKey, err := btcec.ParsePubKey(raw)
	if err != nil {
		return "", ErrInvalidSenderKey
	}
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(publicKey.SerializeUncompressed()[1:])
	digest := hasher.Sum(nil)
	return "0x" + hex.EncodeToString(digest[len(digest)-20:]), nil
}

// SubjectMatchesSender reports whether a profile subject names the sender,
// either as its raw key or as its derived address.
func SubjectMatchesSender(subject, senderPubkey string) bool {
	subject = normalize(subject)
	senderPubkey = normalize(senderPubkey)
	if subject == "" || senderPubkey == "" {
		return false
	}
	if subject == senderPubkey {
		return true
	}
	address, err := AddressFromSender(senderPubkey)
	if err != nil {
		return false
	}
	return strings.EqualFold(subject, address)
}

func decodeSenderKey(senderPubkey string) ([]byte, error) {
	value := normalize(senderPubkey)
	if value == "" {
		return nil, ErrInvalidSenderKey
	}
	encodings := []*base64.Encoding{base64.StdEncoding, base64.RawURLEncoding, base64.URLEncoding, base64.RawStdEncoding}
	for _, encoding := range encodings {
		if raw, err := encoding.DecodeString(value); err == nil {
			return raw, nil
		}
	}
	return nil, ErrInvalidSenderKey
}
