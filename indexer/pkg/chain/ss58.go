package chain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	KusamaSS58Prefix = 2

	publicKeyLen    = 32
	checksumLen     = 2
	maxSimplePrefix = 63
)

var ss58Salt = []byte("SS58PRE")

var ErrInvalidAccountID = errors.New("invalid SS58 account id")

// DecodeAccountID parses an SS58 address into its network prefix and public key,
// verifying the blake2b checksum.
func DecodeAccountID(address string) (uint16, []byte, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidAccountID, err)
	}

	var prefix uint16
	var prefixLen int
	switch len(raw) {
	case 1 + publicKeyLen + checksumLen:
		if raw[0] > maxSimplePrefix {
			return 0, nil, fmt.Errorf("%w: bad prefix byte %d", ErrInvalidAccountID, raw[0])
		}
		prefix, prefixLen = uint16(raw[0]), 1
	case 2 + publicKeyLen + checksumLen:
		if raw[0]&0b0100_0000 == 0 {
			return 0, nil, fmt.Errorf("%w: bad prefix byte %d", ErrInvalidAccountID, raw[0])
		}
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0b0011_1111
		prefix, prefixLen = uint16(lower)|uint16(upper)<<8, 2
	default:
		return 0, nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidAccountID, len(raw))
	}

	body := raw[:len(raw)-checksumLen]
	if !bytes.Equal(ss58Checksum(body), raw[len(raw)-checksumLen:]) {
		return 0, nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidAccountID)
	}
	return prefix, body[prefixLen:], nil
}

// ValidateAccountID returns an error unless address is a well-formed SS58 address.
func ValidateAccountID(address string) error {
	_, _, err := DecodeAccountID(address)
	return err
}

// EncodeAccountID renders a public key as an SS58 address with a single-byte prefix.
func EncodeAccountID(prefix uint8, publicKey []byte) (string, error) {
	if prefix > maxSimplePrefix {
		return "", fmt.Errorf("prefix %d requires two-byte encoding", prefix)
	}
	if len(publicKey) != publicKeyLen {
		return "", fmt.Errorf("public key must be %d bytes, got %d", publicKeyLen, len(publicKey))
	}
	body := append([]byte{prefix}, publicKey...)
	return base58.Encode(append(body, ss58Checksum(body)...)), nil
}

func ss58Checksum(body []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(ss58Salt)
	h.Write(body)
	return h.Sum(nil)[:checksumLen]
}
