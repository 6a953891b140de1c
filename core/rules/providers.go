package rules

import (
	"fmt"

	"proxyrules/internal/constants"
)

// Provider is one rule-provider block of a YAML config.
type Provider struct {
	Key      string
	Type     string
	Behavior string
	Format   Format
	Interval int
	URL      string
	Path     string
	Policy   string
}

// Providers returns the rule-providers for tool in catalog order.
func (c *Catalog) Providers(tool string) []Provider {
	resolved := c.ResolveAll(tool)
	out := make([]Provider, 0, len(resolved))
	for _, r := range resolved {
		out = append(out, Provider{
			Key:      r.Entry.Key,
			Type:     "http",
			Behavior: r.Entry.Behavior,
			Format:   r.Format,
			Interval: constants.ProviderInterval,
			URL:      r.URL,
			Path:     r.LocalPath,
			Policy:   r.Entry.Policy,
		})
	}
	return out
}

// RuleSetLines returns "RULE-SET,<key>,<policy>" for every provider of tool.
func (c *Catalog) RuleSetLines(tool string) []string {
	providers := c.Providers(tool)
	out := make([]string, 0, len(providers))
	for _, p := range providers {
		out = append(out, fmt.Sprintf("RULE-SET,%s,%s", p.Key, p.Policy))
	}
	return out
}

// LoonRemoteRules returns the [Remote Rule] lines for Loon.
func (c *Catalog) LoonRemoteRules() []string {
	resolved := c.ResolveAll(constants.ToolLoon)
	out := make([]string, 0, len(resolved))
	for _, r := range resolved {
		out = append(out, fmt.Sprintf("%s, policy = %s, tag = %s, enabled = true", r.URL, r.Entry.Policy, r.Entry.Tag))
	}
	return out
}

// SurgeLeadingPolicy is the policy whose rule sets Surge evaluates first.
const SurgeLeadingPolicy = "ADBlock"

// SurgeRuleSets returns the remote part of the Surge [Rule] section. Each rule
// set is preceded by a "# <tag>" comment, and rule sets are separated by a
// blank line. Rules routed to SurgeLeadingPolicy come first.
func (c *Catalog) SurgeRuleSets() []string {
	resolved := c.ResolveAll(constants.ToolSurge)

	ordered := make([]ResolvedRule, 0, len(resolved))
	for _, r := range resolved {
		if r.Entry.Policy == SurgeLeadingPolicy {
			ordered = append(ordered, r)
		}
	}
	for _, r := range resolved {
		if r.Entry.Policy != SurgeLeadingPolicy {
			ordered = append(ordered, r)
		}
	}

	var out []string
	for i, r := range ordered {
		if i > 0 {
			out = append(out, "")
		}
		out = append(out, "# "+r.Entry.Tag)
		line := fmt.Sprintf("RULE-SET,%s,%s", r.URL, r.Entry.Policy)
		if r.Entry.Options != "" {
			line += "," + r.Entry.Options
		}
		out = append(out, line)
	}
	return out
}
