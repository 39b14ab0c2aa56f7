package session

import (
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
)

const (
	// TokenPrefix is prepended to every session token.
	TokenPrefix = "hz_"

	// TokenAlphabet defines the character set used for the random portion of a token.
	TokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// TokenLength is the number of random characters generated (excluding the prefix).
	TokenLength = 24
)

// GenerateToken returns a new opaque session token.
func GenerateToken() (string, error) {
	id, err := nanoid.Generate(TokenAlphabet, TokenLength)
	if err != nil {
		return "", errors.Wrap(err, "generating session token")
	}
	return TokenPrefix + id, nil
}

// ValidToken reports whether `token` has the shape of a session token.
func ValidToken(token string) bool {
	if !strings.HasPrefix(token, TokenPrefix) {
		return false
	}
	rest := token[len(TokenPrefix):]
	if len(rest) != TokenLength {
		return false
	}
	for _, c := range rest {
		if !strings.ContainsRune(TokenAlphabet, c) {
			return false
		}
	}
	return true
}
