package cli

import (
	"fmt"
	"net/url"
	"strings"
)

// normalizeHost checks that host is a bare http(s) origin and returns it
// without surrounding whitespace or a trailing slash.
func normalizeHost(host string) (string, error) {
	raw := strings.TrimSpace(host)
	if raw == "" {
		return "", fmt.Errorf("invalid host %q: empty", host)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", host, err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return "", fmt.Errorf("invalid host %q: scheme must be http or https", host)
	case u.Host == "":
		return "", fmt.Errorf("invalid host %q: missing host", host)
	case u.Path != "" && u.Path != "/":
		return "", fmt.Errorf("invalid host %q: path not allowed", host)
	case u.RawQuery != "" || u.Fragment != "":
		return "", fmt.Errorf("invalid host %q: query and fragment not allowed", host)
	}
	return strings.TrimSuffix(raw, "/"), nil
}
