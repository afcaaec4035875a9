// Package id provides tracker ID and test-username generation helpers.
package id

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const usernameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Generator creates tracker identifiers and random negative-test usernames.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewTrackerID returns an opaque tracker id of the form tracker.<10 chars>.
func (Generator) NewTrackerID() string {
	return "tracker." + randomSuffix(10)
}

// NewTestTrackerID returns an isolated tracker id for site self-tests so that
// validation runs never touch a user-facing counter.
func (Generator) NewTestTrackerID() string {
	return "test." + randomSuffix(10)
}

// NewNegativeUsername returns a random 16-character username that is assumed
// not to exist on any site.
func (Generator) NewNegativeUsername() (string, error) {
	var b strings.Builder
	for i := 0; i < 16; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(usernameAlphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(usernameAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func randomSuffix(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}
