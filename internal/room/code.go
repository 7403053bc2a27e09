package room

import (
	"math/rand/v2"
	"strings"
)

const (
	CodeLength   = 4
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// CodeGenerator produces candidate room codes. Uniqueness is enforced by
// the store, not here
type CodeGenerator interface {
	Generate() string
}

// CodeGeneratorFunc adapts a plain function to CodeGenerator
type CodeGeneratorFunc func() string

func (f CodeGeneratorFunc) Generate() string { return f() }

// RandomCodes draws uniformly from A-Z
type RandomCodes struct{}

func (RandomCodes) Generate() string {
	var b strings.Builder
	b.Grow(CodeLength)
	for range CodeLength {
		b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
	}
	return b.String()
}

// NormalizeCode turns user input into the stored form
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidCode reports whether code is exactly four uppercase letters
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
