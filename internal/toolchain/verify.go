package toolchain

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// VerifyDigest compares the computed digest of the archive fetched from url
// against the expected one, ignoring hex case.
func VerifyDigest(url, expected, actual string) error {
	if expected == "" || !strings.EqualFold(strings.TrimSpace(expected), actual) {
		return &ChecksumError{URL: url, Expected: expected, Actual: actual}
	}
	return nil
}

// FileDigest returns the hex SHA-512 of the file at path.
func FileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	hasher := sha512.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
