// Package nodes reads the node-name list the region counts are computed from.
//
// A list may hold plain node names, share links, a base64-encoded block of
// share links, or a YAML document with a "proxies" sequence of named entries.
// Nothing is fetched: subscription URLs are not names and are skipped.
package nodes

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
	"gopkg.in/yaml.v3"

	"proxyrules/internal/debuglog"
)

const namesLogLevel = debuglog.UseGlobal

func nodesLog(level debuglog.Level, format string, args ...interface{}) {
	debuglog.Log("Nodes", level, namesLogLevel, format, args...)
}

// LoadNames reads and parses a node list file.
func LoadNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read node list: %w", err)
	}
	names, err := ParseNames(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return names, nil
}

// ParseNames extracts normalized node names from a node list. Blank lines and
// lines starting with '#' are ignored. Duplicates are kept.
func ParseNames(data []byte) ([]string, error) {
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), ""))
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if names, ok := parseProxiesYAML(trimmed); ok {
		nodesLog(debuglog.LevelVerbose, "read %d names from a proxies document", len(names))
		return names, nil
	}

	if decoded, ok := decodeLinkBlock(trimmed); ok {
		nodesLog(debuglog.LevelVerbose, "decoded base64 link list (%d bytes)", len(decoded))
		trimmed = decoded
	}

	var names []string
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), MaxLinkLength*2)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		switch {
		case IsDirectLink(text):
			label, err := LinkLabel(text)
			if err != nil {
				nodesLog(debuglog.LevelWarn, "line %d: %v, skipping", line, err)
				continue
			}
			text = label
		case strings.Contains(text, "://"):
			nodesLog(debuglog.LevelWarn, "line %d: unsupported link scheme, skipping", line)
			continue
		}
		if name := Normalize(text); name != "" {
			names = append(names, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan node list: %w", err)
	}
	return names, nil
}

// decodeLinkBlock decodes a base64 subscription body. The result is only
// accepted when it is valid UTF-8 holding at least one share link, so a plain
// name that happens to be valid base64 is left alone.
func decodeLinkBlock(data []byte) ([]byte, bool) {
	compact := strings.Join(strings.Fields(string(data)), "")
	decoded, err := decodeBase64WithPadding(compact)
	if err != nil || len(decoded) == 0 || !utf8.Valid(decoded) {
		return nil, false
	}
	if !strings.Contains(string(decoded), "://") {
		return nil, false
	}
	return decoded, true
}

// parseProxiesYAML reads a Clash style document: a mapping whose "proxies"
// key is a sequence of mappings with a "name".
func parseProxiesYAML(data []byte) ([]string, bool) {
	if !bytes.Contains(data, []byte("proxies:")) {
		return nil, false
	}
	var doc struct {
		Proxies []struct {
			Name string `yaml:"name"`
		} `yaml:"proxies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil || len(doc.Proxies) == 0 {
		return nil, false
	}
	names := make([]string, 0, len(doc.Proxies))
	for _, p := range doc.Proxies {
		if name := Normalize(p.Name); name != "" {
			names = append(names, name)
		}
	}
	return names, true
}

// Normalize prepares a name for classification: control characters are
// dropped, full-width ASCII is folded to its narrow form and the result is
// NFC-composed and trimmed.
func Normalize(name string) string {
	name = stripControl(name)
	name = width.Fold.String(name)
	name = norm.NFC.String(name)
	return strings.TrimSpace(name)
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x1F || r == 0x7F {
			return -1
		}
		return r
	}, s)
}
