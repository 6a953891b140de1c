package rules

import (
	"path"
	"strings"

	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

// URL template placeholders.
const (
	phProxyTools = "{proxytools}"
	phRemoteFile = "{remotefile}"
	phFiletype   = "{filetype}"
)

// fallbackKey is the mapping-table key used when a tool has no entry.
const fallbackKey = "fallback"

// Format is a rule-provider payload format.
type Format string

const (
	FormatMRS  Format = "mrs"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// FormatOf infers the payload format from a URL suffix.
func FormatOf(url string) Format {
	switch {
	case strings.HasSuffix(url, ".mrs"):
		return FormatMRS
	case strings.HasSuffix(url, ".yaml"), strings.HasSuffix(url, ".yml"):
		return FormatYAML
	default:
		return FormatText
	}
}

// Ext is the local cache file extension for a format.
func (f Format) Ext() string {
	switch f {
	case FormatMRS:
		return "mrs"
	case FormatYAML:
		return "yaml"
	default:
		return "list"
	}
}

// ResolvedRule is a rule entry bound to one tool.
type ResolvedRule struct {
	Entry     RuleEntry
	URL       string
	LocalPath string
	Format    Format
}

func lookupMapping(table map[string]map[string]string, category, tool, def string) string {
	m, ok := table[category]
	if !ok {
		return def
	}
	if v, ok := m[tool]; ok {
		return v
	}
	if v, ok := m[fallbackKey]; ok {
		return v
	}
	return def
}

// ToolAlias returns the path segment substituted for {proxytools}.
func (c *Catalog) ToolAlias(category, tool string) string {
	return lookupMapping(c.link.Tools, category, tool, tool)
}

// Filetype returns the extension substituted for {filetype}, or "".
func (c *Catalog) Filetype(category, tool string) string {
	return lookupMapping(c.link.Filetypes, category, tool, "")
}

// ResolveURL builds the download URL of entry for tool. It reports false when
// the category has no template or when a placeholder present in the template
// would be replaced by an empty string.
func (c *Catalog) ResolveURL(entry RuleEntry, tool string) (string, bool) {
	tmpl, err := c.Template(entry.Category)
	if err != nil {
		rulesLog(debuglog.LevelTrace, "skip %q for %s: %v", entry.Key, tool, err)
		return "", false
	}

	stem := strings.TrimPrefix(entry.RemoteFile, "./")
	filetype := ""
	if strings.Contains(tmpl, phFiletype) {
		stem = strings.TrimSuffix(stem, path.Ext(stem))
		filetype = c.Filetype(entry.Category, tool)
	}

	values := []struct{ placeholder, value string }{
		{phProxyTools, c.ToolAlias(entry.Category, tool)},
		{phRemoteFile, stem},
		{phFiletype, filetype},
	}
	for _, v := range values {
		if v.value == "" && strings.Contains(tmpl, v.placeholder) {
			rulesLog(debuglog.LevelTrace, "skip %q for %s: empty %s", entry.Key, tool, v.placeholder)
			return "", false
		}
	}

	r := strings.NewReplacer(
		phProxyTools, values[0].value,
		phRemoteFile, values[1].value,
		phFiletype, values[2].value,
	)
	return r.Replace(tmpl), true
}

// Resolve binds entry to tool, adding the payload format and local cache path.
func (c *Catalog) Resolve(entry RuleEntry, tool string) (ResolvedRule, bool) {
	url, ok := c.ResolveURL(entry, tool)
	if !ok {
		return ResolvedRule{}, false
	}
	format := FormatOf(url)
	return ResolvedRule{
		Entry:     entry,
		URL:       url,
		LocalPath: "./" + constants.RulesetDirName + "/" + entry.Name + "." + format.Ext(),
		Format:    format,
	}, true
}

// ResolveAll resolves every entry for tool in catalog order, skipping the
// ones that cannot be resolved.
func (c *Catalog) ResolveAll(tool string) []ResolvedRule {
	out := make([]ResolvedRule, 0, len(c.entries))
	for _, e := range c.entries {
		if r, ok := c.Resolve(e, tool); ok {
			out = append(out, r)
		}
	}
	if skipped := len(c.entries) - len(out); skipped > 0 {
		rulesLog(debuglog.LevelVerbose, "%s: %d of %d rules unresolved", tool, skipped, len(c.entries))
	}
	return out
}
