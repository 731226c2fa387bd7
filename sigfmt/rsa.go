package sigfmt

import (
	"crypto"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"

	"github.com/pkg/errors"
)

var digestOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.SHA1:   {1, 3, 14, 3, 2, 26},
	crypto.SHA256: {2, 16, 840, 1, 101, 3, 4, 2, 1},
	crypto.SHA384: {2, 16, 840, 1, 101, 3, 4, 2, 2},
	crypto.SHA512: {2, 16, 840, 1, 101, 3, 4, 2, 3},
}

type digestInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	Digest    []byte
}

// formatPKCS1 EMSA-PKCS1-v1_5: 00 01 FF..FF 00 DigestInfo, key size bytes
func (f *Formatter) formatPKCS1(message []byte) ([]byte, error) {
	oid, ok := digestOIDs[f.hash]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedDigest, "digest %s", f.hash)
	}

	t, err := asn1.Marshal(digestInfo{
		Algorithm: pkix.AlgorithmIdentifier{Algorithm: oid, Parameters: asn1.NullRawValue},
		Digest:    f.digest(message),
	})
	if err != nil {
		return nil, errors.Wrap(err, "fail to encode DigestInfo")
	}

	k := f.keyBytes()
	if k < len(t)+11 {
		return nil, errors.Wrapf(ErrUnsupportedKeySize, "%d bit key too small for %s", f.keyBits, f.hash)
	}

	em := make([]byte, k)
	em[1] = 0x01
	for i := 2; i < k-len(t)-1; i++ {
		em[i] = 0xFF
	}
	copy(em[k-len(t):], t)

	return em, nil
}

// formatPSS EMSA-PSS-ENCODE over emBits = keyBits-1; fresh random salt
// per call, so two encodings of the same message differ.
func (f *Formatter) formatPSS(message []byte) ([]byte, error) {
	hLen := f.hash.Size()
	sLen := f.saltLen
	emBits := f.keyBits - 1
	emLen := (emBits + 7) / 8

	if emLen < hLen+sLen+2 {
		return nil, errors.Wrapf(ErrUnsupportedKeySize, "%d bit key too small for %s with %d byte salt", f.keyBits, f.hash, sLen)
	}

	salt := make([]byte, sLen)
	if _, err := randReader.Read(salt); err != nil {
		return nil, errors.Wrap(err, "fail to draw salt")
	}

	// H = Hash(0x00*8 || mHash || salt)
	mHash := f.digest(message)
	h := f.hash.New()
	h.Write(make([]byte, 8))
	h.Write(mHash)
	h.Write(salt)
	hashed := h.Sum(nil)

	// DB = PS || 0x01 || salt
	db := make([]byte, emLen-hLen-1)
	db[len(db)-sLen-1] = 0x01
	copy(db[len(db)-sLen:], salt)

	maskedDB := mgf1XOR(db, f.hash, hashed)
	maskedDB[0] &= 0xFF >> (8*emLen - emBits)

	em := make([]byte, emLen)
	copy(em, maskedDB)
	copy(em[len(maskedDB):], hashed)
	em[emLen-1] = 0xBC

	return em, nil
}

// mgf1XOR masks data in place with MGF1(seed) and returns it
func mgf1XOR(data []byte, hash crypto.Hash, seed []byte) []byte {
	var counter [4]byte
	done := 0

	for done < len(data) {
		binary.BigEndian.PutUint32(counter[:], uint32(done/hash.Size()))

		h := hash.New()
		h.Write(seed)
		h.Write(counter[:])

		for _, b := range h.Sum(nil) {
			if done >= len(data) {
				break
			}
			data[done] ^= b
			done++
		}
	}

	return data
}
