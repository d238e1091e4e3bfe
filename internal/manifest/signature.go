package manifest

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// SignatureVerifier checks detached OpenPGP signatures against a keyring file.
type SignatureVerifier struct {
	keyringPath string
}

// NewSignatureVerifier creates a verifier for the keyring at path. The
// keyring may be armored or binary.
func NewSignatureVerifier(path string) *SignatureVerifier {
	return &SignatureVerifier{keyringPath: path}
}

// Verify checks sig (armored or binary) over data.
func (v *SignatureVerifier) Verify(data, sig []byte) error {
	keyring, err := v.loadKeyring()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrManifestSignature, err)
	}

	// Try armored first
	_, err = openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(sig), nil)
	if err != nil {
		_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(sig), nil)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrManifestSignature, err)
	}
	return nil
}

func (v *SignatureVerifier) loadKeyring() (openpgp.EntityList, error) {
	f, err := os.Open(v.keyringPath)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer f.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		if _, serr := f.Seek(0, io.SeekStart); serr != nil {
			return nil, fmt.Errorf("rewind keyring: %w", serr)
		}
		keyring, err = openpgp.ReadKeyRing(f)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}
	return keyring, nil
}
