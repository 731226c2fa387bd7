package signer

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	type args struct {
		algorithm Algorithm
		bits      int
	}
	tests := [...]struct {
		name    string
		args    args
		wantErr bool
	}{
		{`rsa 2048`, args{RSA, 2048}, false},
		{`ecdsa p256`, args{ECDSA, 256}, false},
		{`ecdsa p384`, args{ECDSA, 384}, false},
		{`ecdsa p521 not byte aligned`, args{ECDSA, 521}, true},
		{`ecdsa unknown curve`, args{ECDSA, 512}, true},
		{`unknown algorithm`, args{Algorithm(0), 256}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := NewMemory()
			handle, err := mem.Generate("9c", tt.args.algorithm, tt.args.bits)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.args.algorithm, handle.Algorithm)
			require.Equal(t, tt.args.bits, handle.KeySizeBits)
			require.Equal(t, "9c", handle.Slot)

			_, err = mem.Public(handle)
			require.NoError(t, err)
		})
	}
}

func TestSignRawUnknownSlot(t *testing.T) {
	mem := NewMemory()

	_, err := mem.SignRaw(context.Background(), KeyHandle{Algorithm: RSA, KeySizeBits: 2048, Slot: "9a"}, make([]byte, 256))
	require.ErrorIs(t, err, ErrUnknownSlot)
}

func TestSignRawRSA(t *testing.T) {
	ctx := context.Background()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	mem := NewMemory()
	handle, err := mem.Put("9c", key)
	require.NoError(t, err)

	t.Run("pkcs1 formatted block verifies", func(t *testing.T) {
		digest := sha256.Sum256([]byte("raw signing"))

		// EMSA-PKCS1-v1_5 as the formatter produces it
		prefix := []byte{0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20}
		info := append(prefix, digest[:]...)

		em := make([]byte, 256)
		em[1] = 0x01
		for i := 2; i < len(em)-len(info)-1; i++ {
			em[i] = 0xFF
		}
		copy(em[len(em)-len(info):], info)

		sig, err := mem.SignRaw(ctx, handle, em)
		require.NoError(t, err)
		require.Len(t, sig, 256)
		require.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig))
	})

	t.Run("wrong length refused", func(t *testing.T) {
		_, err := mem.SignRaw(ctx, handle, make([]byte, 128))
		require.ErrorIs(t, err, ErrDeviceError)
	})

	t.Run("mismatched algorithm refused", func(t *testing.T) {
		_, err := mem.SignRaw(ctx, KeyHandle{Algorithm: ECDSA, KeySizeBits: 256, Slot: "9c"}, make([]byte, 32))
		require.ErrorIs(t, err, ErrDeviceError)
	})
}

func TestSignRawECDSA(t *testing.T) {
	ctx := context.Background()

	mem := NewMemory()
	handle, err := mem.Generate("9c", ECDSA, 256)
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("raw signing"))

	sig, err := mem.SignRaw(ctx, handle, digest[:])
	require.NoError(t, err)

	pub, err := mem.Public(handle)
	require.NoError(t, err)
	require.True(t, ecdsa.VerifyASN1(pub.(*ecdsa.PublicKey), digest[:], sig))

	t.Run("wrong width refused", func(t *testing.T) {
		_, err := mem.SignRaw(ctx, handle, make([]byte, 20))
		require.ErrorIs(t, err, ErrDeviceError)
	})
}
