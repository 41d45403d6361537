// Package pwdhash hashes the admin password with scrypt
package pwdhash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// Encoded layout: [version:1][salt:20][scrypt key:32]
const (
	version    = 1
	saltLen    = 20
	keyLen     = 32
	encodedLen = 1 + saltLen + keyLen
	scryptN    = 1 << 14 // Roughly 40 ms on a desktop CPU
	scryptR    = 8
	scryptP    = 1
	saltOffset = 1
	keyOffset  = saltOffset + saltLen
)

func deriveKey(password string, salt []byte) []byte {
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		// Only possible with invalid scrypt parameters, which are constant
		panic(fmt.Sprintf("scrypt failed: %v", err))
	}
	return key
}

// HashPassword returns a new random salt and the derived key, in our encoded layout
func HashPassword(password string) []byte {
	encoded := make([]byte, encodedLen)
	encoded[0] = version
	salt := encoded[saltOffset:keyOffset]
	if _, err := rand.Read(salt); err != nil {
		panic(fmt.Sprintf("Error creating password salt: %v", err))
	}
	copy(encoded[keyOffset:], deriveKey(password, salt))
	return encoded
}

// HashPasswordBase64 returns the base64 encoding of HashPassword
func HashPasswordBase64(password string) string {
	return base64.RawStdEncoding.EncodeToString(HashPassword(password))
}

func isValidHash(hash []byte) bool {
	return len(hash) == encodedLen && hash[0] == version
}

// VerifyHash returns true if password matches hash (which was produced by HashPassword)
func VerifyHash(password string, hash []byte) bool {
	if !isValidHash(hash) {
		return false
	}
	key := deriveKey(password, hash[saltOffset:keyOffset])
	return subtle.ConstantTimeCompare(key, hash[keyOffset:]) == 1
}

// VerifyHashBase64 returns true if password matches the output of HashPasswordBase64
func VerifyHashBase64(password, hashb64 string) bool {
	hash, err := base64.RawStdEncoding.DecodeString(hashb64)
	if err != nil {
		return false
	}
	return VerifyHash(password, hash)
}

// IsValidHashBase64 returns true if hashb64 looks like the output of HashPasswordBase64
func IsValidHashBase64(hashb64 string) bool {
	hash, err := base64.RawStdEncoding.DecodeString(hashb64)
	return err == nil && isValidHash(hash)
}
