package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URLValidator rejects request targets that could reach internal
// infrastructure (SSRF protection). A nil *URLValidator allows everything.
type URLValidator struct {
	blockedHostnames []string
}

// NewURLValidator creates a validator with the default blocked hosts
func NewURLValidator() *URLValidator {
	return &URLValidator{
		blockedHostnames: []string{
			"localhost",
			"127.0.0.1",
			"::1",
			"0.0.0.0",
			"::",
			"::ffff:127.0.0.1",
		},
	}
}

// Validate checks the scheme and host of a request URL.
// Hostnames are resolved and every address must be publicly routable.
func (v *URLValidator) Validate(urlStr string) error {
	if v == nil {
		return nil
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("protocol '%s' is not allowed (only http and https)", parsedURL.Scheme)
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return fmt.Errorf("hostname is required")
	}

	normalizedHost := strings.ToLower(strings.TrimSpace(hostname))
	for _, blocked := range v.blockedHostnames {
		if normalizedHost == blocked {
			return fmt.Errorf("hostname '%s' is blocked (SSRF protection: localhost access)", hostname)
		}
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		// DNS failure is not a security signal; the request itself will fail
		return nil
	}

	for _, ip := range ips {
		if err := validateIP(ip); err != nil {
			return err
		}
	}

	return nil
}

// validateIP blocks loopback, private, link-local, multicast and
// unspecified addresses
func validateIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("IP %s is blocked (SSRF protection: loopback address)", ip)
	case ip.IsPrivate():
		return fmt.Errorf("IP %s is blocked (SSRF protection: private network)", ip)
	case ip.IsLinkLocalUnicast():
		return fmt.Errorf("IP %s is blocked (SSRF protection: link-local address)", ip)
	case ip.IsMulticast():
		return fmt.Errorf("IP %s is blocked (SSRF protection: multicast address)", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("IP %s is blocked (SSRF protection: unspecified address)", ip)
	}
	return nil
}
