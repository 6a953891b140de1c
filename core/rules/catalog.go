// Package rules loads the remote rule catalog and resolves every rule entry to
// a per-tool download URL.
//
// The catalog is split across two YAML documents:
//
//   - RemoteRules.yaml: a "rules" mapping whose leaves are rule entries. Leaves
//     may be grouped under arbitrary nesting keys; nesting is flattened in
//     document order and only the leaf key is kept.
//   - RemoteRulesLinkBase.yaml: the URL template of every category plus the
//     per-tool alias and filetype tables ("Categories", "Categories_Tools_List",
//     "Categories_Filetype_List").
//
// Resolution never fails loudly: an entry whose URL cannot be built for a tool
// is skipped from that tool's output.
package rules

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

const catalogLogLevel = debuglog.UseGlobal

func rulesLog(level debuglog.Level, format string, args ...interface{}) {
	debuglog.Log("Rules", level, catalogLogLevel, format, args...)
}

var (
	// ErrUnknownRule is returned by Lookup for a key that is not in the catalog.
	ErrUnknownRule = errors.New("unknown rule")
	// ErrUnknownCategory is returned by Template for a category without a URL template.
	ErrUnknownCategory = errors.New("unknown category")
)

// DefaultBehavior is used for entries that do not declare one.
const DefaultBehavior = "classical"

// RuleEntry is one remote rule set.
type RuleEntry struct {
	Key        string // catalog key, also the rule-provider name
	Name       string // display name, used for local file names
	Category   string // selects the URL template
	RemoteFile string // path stem substituted into {remotefile}
	Behavior   string // domain, ipcidr or classical
	Policy     string // group the rule routes to
	Tag        string // label for Loon and Surge
	Options    string // extra Surge RULE-SET options, e.g. extended-matching
}

// Category is the URL template of one rule source.
type Category struct {
	URL string `yaml:"url"`
}

// LinkBase holds the category templates and per-tool mapping tables.
type LinkBase struct {
	Categories map[string]Category          `yaml:"Categories"`
	Tools      map[string]map[string]string `yaml:"Categories_Tools_List"`
	Filetypes  map[string]map[string]string `yaml:"Categories_Filetype_List"`
}

// Catalog is the loaded, validated rule catalog. It is immutable.
type Catalog struct {
	entries []RuleEntry
	index   map[string]int
	link    LinkBase
}

// NewCatalog validates entries and builds a Catalog. Every entry needs a key,
// name, category and remote file; keys must be unique. All problems are
// reported together.
func NewCatalog(entries []RuleEntry, link LinkBase) (*Catalog, error) {
	c := &Catalog{
		entries: make([]RuleEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
		link:    link,
	}

	var errs error
	for _, e := range entries {
		if err := validateEntry(e); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, dup := c.index[e.Key]; dup {
			errs = multierr.Append(errs, fmt.Errorf("rule %q: duplicate key", e.Key))
			continue
		}
		if e.Behavior == "" {
			e.Behavior = DefaultBehavior
		}
		if e.Policy == "" {
			e.Policy = e.Name
		}
		if e.Tag == "" {
			e.Tag = e.Name
		}
		if _, ok := link.Categories[e.Category]; !ok {
			rulesLog(debuglog.LevelWarn, "rule %q uses category %q without a URL template", e.Key, e.Category)
		}
		c.index[e.Key] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	if errs != nil {
		return nil, fmt.Errorf("invalid rule catalog: %w", errs)
	}

	rulesLog(debuglog.LevelVerbose, "loaded %d rules across %d categories", len(c.entries), len(link.Categories))
	return c, nil
}

func validateEntry(e RuleEntry) error {
	var errs error
	if e.Key == "" {
		errs = multierr.Append(errs, errors.New("rule without key"))
	}
	if e.Name == "" {
		errs = multierr.Append(errs, fmt.Errorf("rule %q: missing name", e.Key))
	}
	if e.Category == "" {
		errs = multierr.Append(errs, fmt.Errorf("rule %q: missing category", e.Key))
	}
	if e.RemoteFile == "" {
		errs = multierr.Append(errs, fmt.Errorf("rule %q: missing remotefile", e.Key))
	}
	return errs
}

// LoadCatalog parses the two catalog documents.
func LoadCatalog(rulesYAML, linkBaseYAML []byte) (*Catalog, error) {
	entries, err := parseRules(rulesYAML)
	if err != nil {
		return nil, err
	}
	var link LinkBase
	if err := yaml.Unmarshal(linkBaseYAML, &link); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", constants.LinkBaseFileName, err)
	}
	if len(link.Categories) == 0 {
		return nil, fmt.Errorf("%s declares no categories", constants.LinkBaseFileName)
	}
	return NewCatalog(entries, link)
}

// LoadCatalogFS reads RemoteRules.yaml and RemoteRulesLinkBase.yaml from the
// root of fsys.
func LoadCatalogFS(fsys fs.FS) (*Catalog, error) {
	rulesData, err := fs.ReadFile(fsys, constants.RulesFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule catalog: %w", err)
	}
	linkData, err := fs.ReadFile(fsys, constants.LinkBaseFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule link base: %w", err)
	}
	return LoadCatalog(rulesData, linkData)
}

// LoadCatalogDir is LoadCatalogFS over a directory on disk.
func LoadCatalogDir(dir string) (*Catalog, error) {
	return LoadCatalogFS(os.DirFS(dir))
}

// ruleFields is the on-disk shape of one entry.
type ruleFields struct {
	Name       string `yaml:"name"`
	Category   string `yaml:"category"`
	RemoteFile string `yaml:"remotefile"`
	Behavior   string `yaml:"behavior"`
	Policy     string `yaml:"policy"`
	Tag        string `yaml:"tag"`
	Options    string `yaml:"options"`
}

// parseRules walks the "rules" mapping in document order. A mapping with at
// least one scalar value is an entry; a mapping of mappings is a group.
func parseRules(data []byte) ([]RuleEntry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", constants.RulesFileName, err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("%s is empty", constants.RulesFileName)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: top level must be a mapping", constants.RulesFileName)
	}

	var rulesNode *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "rules" {
			rulesNode = root.Content[i+1]
			break
		}
	}
	if rulesNode == nil || rulesNode.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: missing \"rules\" mapping", constants.RulesFileName)
	}

	var entries []RuleEntry
	if err := flatten(rulesNode, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func flatten(node *yaml.Node, out *[]RuleEntry) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.MappingNode {
			continue
		}
		if !isEntry(value) {
			if err := flatten(value, out); err != nil {
				return err
			}
			continue
		}
		var f ruleFields
		if err := value.Decode(&f); err != nil {
			return fmt.Errorf("rule %q (line %d): %w", key.Value, key.Line, err)
		}
		*out = append(*out, RuleEntry{
			Key:        key.Value,
			Name:       f.Name,
			Category:   f.Category,
			RemoteFile: f.RemoteFile,
			Behavior:   f.Behavior,
			Policy:     f.Policy,
			Tag:        f.Tag,
			Options:    f.Options,
		})
	}
	return nil
}

func isEntry(node *yaml.Node) bool {
	for i := 1; i < len(node.Content); i += 2 {
		if node.Content[i].Kind == yaml.ScalarNode {
			return true
		}
	}
	return false
}

// Entries returns every rule in catalog order.
func (c *Catalog) Entries() []RuleEntry {
	return append([]RuleEntry(nil), c.entries...)
}

// Len returns the number of rules.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Lookup returns the rule with the given key.
func (c *Catalog) Lookup(key string) (RuleEntry, error) {
	i, ok := c.index[key]
	if !ok {
		return RuleEntry{}, fmt.Errorf("%w: %q", ErrUnknownRule, key)
	}
	return c.entries[i], nil
}

// ByCategory returns the rules of one category in catalog order.
func (c *Catalog) ByCategory(category string) []RuleEntry {
	var out []RuleEntry
	for _, e := range c.entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

// Template returns the URL template of a category.
func (c *Catalog) Template(category string) (string, error) {
	cat, ok := c.link.Categories[category]
	if !ok || cat.URL == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return cat.URL, nil
}

// Policies returns the distinct policies referenced by the catalog, in first
// appearance order.
func (c *Catalog) Policies() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range c.entries {
		if !seen[e.Policy] {
			seen[e.Policy] = true
			out = append(out, e.Policy)
		}
	}
	return out
}
