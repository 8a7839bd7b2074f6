package provision

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// PasswordLength is the default length for generated passwords
	PasswordLength = 24
	// Characters that need no escaping in URLs or connection strings.
	passwordCharset = "abcdefghijklmnopqrstuvwxyz" +
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
		"0123456789" +
		"-_.~"

	// ANSI color codes for terminal output
	ColorReset        = "\033[0m"
	ColorBrightYellow = "\033[93m"
	ColorBrightCyan   = "\033[96m"
	ColorBold         = "\033[1m"
)

// GeneratePassword generates a cryptographically secure random password
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		length = PasswordLength
	}

	password := make([]byte, length)
	charsetLen := big.NewInt(int64(len(passwordCharset)))

	for i := range password {
		num, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		password[i] = passwordCharset[num.Int64()]
	}

	return string(password), nil
}

// DisplayPasswordWarning prints a prominent warning with the generated password
func DisplayPasswordWarning(password string) {
	fmt.Println()
	fmt.Printf("%s%s🔐 Generated Password%s\n", ColorBold, ColorBrightYellow, ColorReset)
	fmt.Printf("%s  SAVE THIS PASSWORD - IT WON'T BE SHOWN AGAIN%s\n", ColorBrightYellow, ColorReset)
	fmt.Println()
	fmt.Printf("  %sPassword: %s%s%s\n", ColorBold, ColorBrightCyan, password, ColorReset)
	fmt.Println()
}
