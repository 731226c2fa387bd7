package sigfmt

import (
	"github.com/pkg/errors"
)

// formatECDSA hash the message and left pad with zeros to the curve
// coordinate width. A digest wider than the curve is not truncated here;
// that combination is refused. Curves whose order is not a whole number
// of bytes are refused too: padding to the byte width would shift the
// integer the device signs away from the one verifiers recompute.
func (f *Formatter) formatECDSA(message []byte) ([]byte, error) {
	if f.keyBits%8 != 0 {
		return nil, errors.Wrapf(ErrUnsupportedKeySize, "%d bit curve is not byte aligned", f.keyBits)
	}

	digest := f.digest(message)

	k := f.keyBytes()
	if len(digest) > k {
		return nil, errors.Wrapf(ErrUnsupportedKeySize, "%s digest does not fit %d bit curve", f.hash, f.keyBits)
	}

	out := make([]byte, k)
	copy(out[k-len(digest):], digest)
	return out, nil
}
