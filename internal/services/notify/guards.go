package notify

import (
	"fmt"
	"html"
	"net"
	"net/url"
	"strings"
)

// ValidateWebhookURL rejects webhook targets that could reach internal
// infrastructure: only http(s) URLs whose host resolves exclusively to
// public addresses are allowed.
func ValidateWebhookURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("webhook url must be http or https")
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("webhook url has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if !isPublicIP(ip) {
			return fmt.Errorf("webhook host %s is not a public address", host)
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("webhook host %s does not resolve: %w", host, err)
	}
	for _, ip := range ips {
		if !isPublicIP(ip) {
			return fmt.Errorf("webhook host %s resolves to non-public address %s", host, ip)
		}
	}
	return nil
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast())
}

// EscapeHTML sanitizes job-sourced text before it lands in an HTML body
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}

// MaskRecipient hides most of a recipient address for log output:
// "alice@example.com" becomes "al***@example.com", opaque IDs keep their
// first four characters.
func MaskRecipient(recipient string) string {
	if recipient == "" {
		return ""
	}
	if at := strings.Index(recipient, "@"); at > 0 {
		local := recipient[:at]
		if len(local) <= 2 {
			return "***" + recipient[at:]
		}
		return local[:2] + "***" + recipient[at:]
	}
	if len(recipient) <= 4 {
		return "***"
	}
	return recipient[:4] + "***"
}
