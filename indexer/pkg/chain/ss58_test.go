package chain

import (
	"bytes"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func testAccountID(t *testing.T, seed byte) string {
	t.Helper()
	id, err := EncodeAccountID(KusamaSS58Prefix, bytes.Repeat([]byte{seed}, 32))
	require.NoError(t, err)
	return id
}

func TestLake_Chain_SS58(t *testing.T) {
	t.Parallel()

	t.Run("round trips a kusama address", func(t *testing.T) {
		t.Parallel()

		pub := bytes.Repeat([]byte{0xab}, 32)
		addr, err := EncodeAccountID(KusamaSS58Prefix, pub)
		require.NoError(t, err)

		prefix, got, err := DecodeAccountID(addr)
		require.NoError(t, err)
		require.Equal(t, uint16(KusamaSS58Prefix), prefix)
		require.Equal(t, pub, got)
		require.NoError(t, ValidateAccountID(addr))
	})

	t.Run("rejects a corrupted checksum", func(t *testing.T) {
		t.Parallel()

		raw, err := base58.Decode(testAccountID(t, 7))
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0xff

		err = ValidateAccountID(base58.Encode(raw))
		require.ErrorIs(t, err, ErrInvalidAccountID)
		require.Contains(t, err.Error(), "checksum")
	})

	t.Run("rejects bad input", func(t *testing.T) {
		t.Parallel()

		for _, addr := range []string{"", "0OIl", "5GrwvaEF", base58.Encode(make([]byte, 40))} {
			require.ErrorIs(t, ValidateAccountID(addr), ErrInvalidAccountID, addr)
		}
	})

	t.Run("rejects wrong public key length", func(t *testing.T) {
		t.Parallel()

		_, err := EncodeAccountID(KusamaSS58Prefix, []byte{1, 2, 3})
		require.Error(t, err)
	})
}

func TestLake_Chain_Perbill(t *testing.T) {
	t.Parallel()

	p := Perbill(100_000_000)
	require.Equal(t, "0.1", p.Fraction().String())
	require.Equal(t, "10", p.Percent().String())
	require.Equal(t, "1", Perbill(PerbillDenominator).Fraction().String())
}
