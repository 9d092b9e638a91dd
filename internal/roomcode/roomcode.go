package roomcode

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/victornm/quizroom/internal/errors"
)

const (
	// Alphabet leaves out 0, O, 1 and I so codes can be read aloud and typed.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	defaultLength      = 6
	defaultMaxAttempts = 32
)

type Config struct {
	Length      int
	MaxAttempts int
	// Rand defaults to crypto/rand.
	Rand io.Reader
}

type Generator struct {
	length      int
	maxAttempts int
	rand        io.Reader
}

func NewGenerator(c Config) *Generator {
	g := &Generator{
		length:      c.Length,
		maxAttempts: c.MaxAttempts,
		rand:        c.Rand,
	}

	if g.length <= 0 {
		g.length = defaultLength
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = defaultMaxAttempts
	}
	if g.rand == nil {
		g.rand = rand.Reader
	}

	return g
}

// Generate returns a code for which taken reports false. It gives up after a bounded number of
// collisions with a resource exhausted error.
func (g *Generator) Generate(taken func(code string) bool) (string, error) {
	buf := make([]byte, g.length)
	for range g.maxAttempts {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", fmt.Errorf("roomcode: read random: %w", err)
		}

		code := make([]byte, g.length)
		for i, b := range buf {
			code[i] = Alphabet[int(b)%len(Alphabet)]
		}

		if !taken(string(code)) {
			return string(code), nil
		}
	}

	return "", errors.New(errors.CodeResourceExhausted,
		errors.WithMessagef("room code generation exhausted after %d attempts", g.maxAttempts))
}

// Valid reports whether code has the generator's shape.
func (g *Generator) Valid(code string) bool {
	if len(code) != g.length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !isAlphabet(code[i]) {
			return false
		}
	}
	return true
}

func isAlphabet(c byte) bool {
	for i := 0; i < len(Alphabet); i++ {
		if Alphabet[i] == c {
			return true
		}
	}
	return false
}
