package parse

import (
	"net"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL for deduplication: lowercases the
// scheme and host, strips default ports (80 for http, 443 for https),
// ensures an empty path becomes "/", and drops the fragment. The query
// string is kept — parameterized URLs are distinct pages for auditing.
// Does not modify the input *url.URL.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	}

	normalized.Fragment = ""
	normalized.RawFragment = ""

	return normalized.String()
}

// ParseAndNormalize parses a URL string with the stricter
// url.ParseRequestURI (requiring a scheme) and normalizes the result.
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(urlStr)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(parsed), parsed, nil
}
