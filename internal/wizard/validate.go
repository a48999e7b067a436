package wizard

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Validator turns raw input into the stored value, or returns the rejection reason.
// Validators must not panic and must not touch anything outside their argument.
type Validator func(input string) (string, error)

// NonNegativeInt accepts decimal integers >= 0.
func NonNegativeInt(input string) (string, error) {
	s := strings.TrimSpace(input)
	n, err := strconv.ParseUint(s, 10, 63)
	if err != nil {
		return "", errors.New("must be a non-negative whole number")
	}
	return strconv.FormatUint(n, 10), nil
}

// Name accepts identifiers made of letters, digits and underscores.
func Name(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", errors.New("must not be empty")
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return "", fmt.Errorf("only letters, digits and _ are allowed (got %q)", r)
		}
	}
	return s, nil
}

// Port accepts a port number 1-65535.
func Port(input string) (string, error) {
	s, err := NonNegativeInt(input)
	if err != nil {
		return "", err
	}
	if n, _ := strconv.Atoi(s); n < 1 || n > 65535 {
		return "", errors.New("must be a port number between 1 and 65535")
	}
	return s, nil
}

// OptionalPort is Port, but "-", "all" or "any" mean every port and yield "".
func OptionalPort(input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "-", "all", "any", "*":
		return "", nil
	}
	return Port(input)
}

// IPv4 accepts a dotted IPv4 address.
func IPv4(input string) (string, error) {
	s := strings.TrimSpace(input)
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil || strings.Contains(s, ":") {
		return "", errors.New("must be an IPv4 address like 192.168.1.50")
	}
	return s, nil
}

// MAC accepts a colon or dash separated hardware address and normalizes it to lowercase colons.
func MAC(input string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(input))
	if err != nil || len(hw) != 6 {
		return "", errors.New("must be a MAC address like aa:bb:cc:dd:ee:ff")
	}
	return hw.String(), nil
}

// Hostname accepts an RFC 1123 host label sequence.
func Hostname(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" || len(s) > 253 {
		return "", errors.New("must be a hostname of 1-253 characters")
	}
	for _, label := range strings.Split(s, ".") {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return "", fmt.Errorf("invalid hostname label %q", label)
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
				return "", fmt.Errorf("invalid character %q in hostname", r)
			}
		}
	}
	return s, nil
}

// NetTarget accepts an IP address or hostname safe to pass to network tools.
func NetTarget(input string) (string, error) {
	s := strings.TrimSpace(input)
	if ip := net.ParseIP(s); ip != nil {
		return s, nil
	}
	if _, err := Hostname(s); err != nil {
		return "", errors.New("must be an IP address or a hostname")
	}
	return s, nil
}

// URL accepts absolute http(s) URLs.
func URL(input string) (string, error) {
	s := strings.TrimSpace(input)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.New("must be an http:// or https:// URL")
	}
	return s, nil
}

// HTTPTarget accepts an http(s) URL or anything NetTarget accepts.
func HTTPTarget(input string) (string, error) {
	if s, err := URL(input); err == nil {
		return s, nil
	}
	if s, err := NetTarget(input); err == nil {
		return s, nil
	}
	return "", errors.New("must be an http(s) URL, an IP address or a hostname")
}

// NonEmpty accepts any input with visible characters.
func NonEmpty(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", errors.New("must not be empty")
	}
	return s, nil
}

// Lines accepts one or more non-blank lines and returns them trimmed, newline joined.
func Lines(input string) (string, error) {
	var out []string
	for _, line := range strings.Split(input, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		return "", errors.New("enter at least one line")
	}
	return strings.Join(out, "\n"), nil
}

// SplitLines is the inverse of Lines for committing a stored value.
func SplitLines(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, "\n")
}
