// Package horosafe guards untrusted input at the edges of ezpage: page
// identifiers arriving in URLs and tool calls, file names derived from
// them, and bounded reads of request or stdin bodies.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// MaxIdentifierLen bounds page identifiers.
const MaxIdentifierLen = 128

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrTooLarge is returned by LimitedReadAll past its limit.
var ErrTooLarge = errors.New("horosafe: input too large")

// ValidateIdentifier rejects identifiers unsuitable as database keys, file
// names or URL path segments. Allows alphanumeric, underscore, hyphen and
// dot, but not a leading dot.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("horosafe: identifier must not be empty")
	}
	if len(s) > MaxIdentifierLen {
		return fmt.Errorf("horosafe: identifier too long (max %d)", MaxIdentifierLen)
	}
	if s[0] == '.' {
		return fmt.Errorf("horosafe: identifier must not start with a dot")
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("horosafe: invalid character %q in identifier", r)
		}
	}
	return nil
}

// SafePath joins base and name, refusing results outside base.
func SafePath(base, name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+name))
	root := filepath.Clean(base)
	if cleaned != root && !strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// LimitedReadAll reads at most maxBytes from r and fails with ErrTooLarge
// when there is more.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
