package render

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"proxyrules/core/groups"
	"proxyrules/core/rules"
)

// canonicalAnchor names the shared policy member list.
const canonicalAnchor = "a1"

// yamlGroup is the YAML and JSON shape of one proxy group.
type yamlGroup struct {
	Name          string   `yaml:"name" json:"name"`
	Type          string   `yaml:"type" json:"type"`
	Proxies       []string `yaml:"proxies,omitempty" json:"proxies,omitempty"`
	IncludeAll    bool     `yaml:"include-all,omitempty" json:"include-all,omitempty"`
	Filter        string   `yaml:"filter,omitempty" json:"filter,omitempty"`
	ExcludeFilter string   `yaml:"exclude-filter,omitempty" json:"exclude-filter,omitempty"`
	URL           string   `yaml:"url,omitempty" json:"url,omitempty"`
	Interval      int      `yaml:"interval,omitempty" json:"interval,omitempty"`
	Tolerance     int      `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	Lazy          *bool    `yaml:"lazy,omitempty" json:"lazy,omitempty"`
	Icon          string   `yaml:"icon,omitempty" json:"icon,omitempty"`
}

func toYAMLGroup(g groups.ProxyGroup) yamlGroup {
	out := yamlGroup{
		Name:          g.Name,
		Type:          string(g.Kind),
		Proxies:       g.Members,
		IncludeAll:    g.IncludeAll,
		Filter:        g.Filter,
		ExcludeFilter: g.ExcludeFilter,
		Icon:          g.Icon,
	}
	if g.HealthCheck != nil {
		lazy := g.HealthCheck.Lazy
		out.URL = g.HealthCheck.URL
		out.Interval = g.HealthCheck.Interval
		out.Tolerance = g.HealthCheck.Tolerance
		out.Lazy = &lazy
	}
	return out
}

// providerBlock is one rule-provider entry.
type providerBlock struct {
	Type     string `yaml:"type" json:"type"`
	Behavior string `yaml:"behavior" json:"behavior"`
	Format   string `yaml:"format" json:"format"`
	Interval int    `yaml:"interval" json:"interval"`
	URL      string `yaml:"url" json:"url"`
	Path     string `yaml:"path" json:"path"`
}

func toProviderBlock(p rules.Provider) providerBlock {
	return providerBlock{
		Type:     p.Type,
		Behavior: p.Behavior,
		Format:   string(p.Format),
		Interval: p.Interval,
		URL:      p.URL,
		Path:     p.Path,
	}
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func boolNode(v bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
}

func intNode(v int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
}

func valueNode(v interface{}) (*yaml.Node, error) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return &n, nil
}

// document is an ordered top-level mapping.
type document struct {
	root yaml.Node
	err  error
}

func newDocument() *document {
	return &document{root: yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
}

func (d *document) set(key string, value *yaml.Node) {
	d.root.Content = append(d.root.Content, strNode(key), value)
}

// setValue encodes v and appends it under key. The first error sticks.
func (d *document) setValue(key string, v interface{}) {
	if d.err != nil {
		return
	}
	n, err := valueNode(v)
	if err != nil {
		d.err = fmt.Errorf("failed to encode %s: %w", key, err)
		return
	}
	d.set(key, n)
}

// inline encodes a struct and appends its fields at the top level.
func (d *document) inline(v interface{}) {
	if d.err != nil {
		return
	}
	n, err := valueNode(v)
	if err != nil {
		d.err = fmt.Errorf("failed to encode header: %w", err)
		return
	}
	d.root.Content = append(d.root.Content, n.Content...)
}

func (d *document) bytes() ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d.root); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// groupsNode encodes groups in order. The first SharedSource group's member
// list carries the canonical anchor and every SharedAlias group refers to it.
func groupsNode(gs []groups.ProxyGroup) (*yaml.Node, error) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	var anchor *yaml.Node

	for _, g := range gs {
		n, err := valueNode(toYAMLGroup(g))
		if err != nil {
			return nil, fmt.Errorf("failed to encode group %q: %w", g.Name, err)
		}
		proxies := mappingValue(n, "proxies")
		switch {
		case proxies == nil:
		case g.Shared == groups.SharedSource && anchor == nil:
			proxies.Anchor = canonicalAnchor
			anchor = proxies
		case g.Shared == groups.SharedAlias && anchor != nil:
			replaceMappingValue(n, "proxies", &yaml.Node{
				Kind:  yaml.AliasNode,
				Value: canonicalAnchor,
				Alias: anchor,
			})
		}
		seq.Content = append(seq.Content, n)
	}
	return seq, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func replaceMappingValue(n *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			n.Content[i+1] = value
			return
		}
	}
}

// providersNode encodes the rule-providers mapping in catalog order.
func providersNode(providers []rules.Provider) (*yaml.Node, error) {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, p := range providers {
		n, err := valueNode(toProviderBlock(p))
		if err != nil {
			return nil, fmt.Errorf("failed to encode provider %q: %w", p.Key, err)
		}
		m.Content = append(m.Content, strNode(p.Key), n)
	}
	return m, nil
}

// spaceSections inserts a blank line before every top-level key in sections
// unless one is already there.
func spaceSections(text string, sections ...string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines)+len(sections))
	for i, line := range lines {
		if i > 0 && isTopLevelKey(line, sections) && out[len(out)-1] != "" {
			out = append(out, "")
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// markSections appends a comment to the line of every top-level key in
// sections.
func markSections(text, comment string, sections ...string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if isTopLevelKey(line, sections) {
			lines[i] = line + " " + comment
		}
	}
	return strings.Join(lines, "\n")
}

// insertBefore places block before the first top-level key line.
func insertBefore(text, key, block string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if isTopLevelKey(line, []string{key}) {
			head := strings.Join(lines[:i], "\n")
			tail := strings.Join(lines[i:], "\n")
			if head != "" {
				head += "\n"
			}
			return head + block + tail
		}
	}
	return text
}

func isTopLevelKey(line string, keys []string) bool {
	for _, k := range keys {
		if line == k+":" || strings.HasPrefix(line, k+": ") {
			return true
		}
	}
	return false
}
