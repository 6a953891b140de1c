package nodes

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// linkSchemes are the share-link prefixes a node list may contain.
var linkSchemes = []string{
	"vless://",
	"vmess://",
	"trojan://",
	"ss://",
	"hysteria2://",
	"hy2://",
	"ssh://",
}

// IsDirectLink reports whether input is a share link of a known scheme.
func IsDirectLink(input string) bool {
	trimmed := strings.TrimSpace(input)
	for _, prefix := range linkSchemes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// MaxLinkLength bounds a single share link.
const MaxLinkLength = 8192

// LinkLabel returns the display name carried by a share link: the VMess "ps"
// field, or the URL fragment for every other scheme. A link without a name is
// labelled "<scheme>-<server>-<port>".
func LinkLabel(link string) (string, error) {
	link = strings.TrimSpace(link)
	if len(link) > MaxLinkLength {
		return "", fmt.Errorf("link length (%d) exceeds maximum (%d)", len(link), MaxLinkLength)
	}
	if strings.HasPrefix(link, "vmess://") {
		return vmessLabel(strings.TrimPrefix(link, "vmess://"))
	}

	scheme, rest, ok := strings.Cut(link, "://")
	if !ok {
		return "", fmt.Errorf("not a share link")
	}
	if scheme == "hy2" {
		scheme = "hysteria2"
	}

	body, fragment, _ := strings.Cut(rest, "#")
	if fragment != "" {
		if label, err := url.PathUnescape(fragment); err == nil {
			fragment = label
		}
		if label := strings.TrimSpace(fragment); label != "" {
			return label, nil
		}
	}

	server, port := hostPort(body)
	if server == "" {
		return "", fmt.Errorf("%s link has neither a name nor a server", scheme)
	}
	return defaultLabel(scheme, server, port), nil
}

// hostPort extracts the server and port of "userinfo@host:port/path?query".
func hostPort(body string) (string, int) {
	if i := strings.IndexAny(body, "/?"); i >= 0 {
		body = body[:i]
	}
	if i := strings.LastIndex(body, "@"); i >= 0 {
		body = body[i+1:]
	}
	host, portStr, err := net.SplitHostPort(body)
	if err != nil {
		return body, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func defaultLabel(scheme, server string, port int) string {
	return fmt.Sprintf("%s-%s-%d", scheme, server, port)
}

// vmessLabel reads the name of a vmess://base64(json) link.
func vmessLabel(payload string) (string, error) {
	decoded, err := decodeBase64WithPadding(payload)
	if err != nil {
		return "", fmt.Errorf("failed to decode VMess base64: %w", err)
	}
	var cfg struct {
		PS   string      `json:"ps"`
		Add  string      `json:"add"`
		Port interface{} `json:"port"`
	}
	if err := json.Unmarshal(decoded, &cfg); err != nil {
		return "", fmt.Errorf("failed to parse VMess JSON: %w", err)
	}
	if label := strings.TrimSpace(cfg.PS); label != "" {
		return label, nil
	}
	if cfg.Add == "" {
		return "", fmt.Errorf("VMess link has neither ps nor add")
	}
	return defaultLabel("vmess", cfg.Add, vmessPort(cfg.Port)), nil
}

// vmessPort accepts the port as a JSON number or a numeric string.
func vmessPort(v interface{}) int {
	switch p := v.(type) {
	case float64:
		return int(p)
	case string:
		n, _ := strconv.Atoi(p)
		return n
	}
	return 0
}

// decodeBase64WithPadding tries the URL-safe and standard alphabets, without
// and with padding.
func decodeBase64WithPadding(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(s); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.WithPadding(base64.NoPadding).DecodeString(s); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.URLEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
