// Package region classifies proxy node display names into country/region
// buckets and aggregates them into ordered per-region summaries.
//
// The region table is ordered: the first rule whose pattern matches a name
// wins. Names matching the ISP exclusion pattern (home broadband, landing
// nodes, Starlink) are dropped from classification entirely when exclusion is
// enabled. Everything else falls into the implicit "Other" bucket.
//
// Patterns use the .NET-flavoured syntax of github.com/dlclark/regexp2, the
// same flavour the YAML meta engine accepts in group filters, so inline
// options like (?i) and lookaheads in synthesized patterns keep working when
// they are copied into generated configs.
package region

import "strings"

// OtherName is the name of the implicit catch-all region.
const OtherName = "Other"

const iconBase = "https://testingcf.jsdelivr.net/gh/Koolson/Qure@master/IconSet/Color/"

// OtherIcon is the icon used for the catch-all region.
const OtherIcon = iconBase + "Global.png"

// Rule is one entry of the region table.
type Rule struct {
	Name    string // display name, e.g. "Hong Kong"
	Code    string // short identifier, e.g. "HK"
	Pattern string // regexp2 pattern tested against node names
	Icon    string
}

// Table is the ordered region table plus the ISP exclusion pattern.
// Rules order is priority order.
type Table struct {
	Rules   []Rule
	Exclude string
}

// DefaultTable returns the built-in region table.
func DefaultTable() Table {
	return Table{
		Rules: []Rule{
			{
				Name:    "Hong Kong",
				Code:    "HK",
				Pattern: `(?i)香港|港|HK|hk|Hong Kong|HongKong|hongkong|🇭🇰`,
				Icon:    iconBase + "Hong_Kong.png",
			},
			{
				Name:    "Taiwan",
				Code:    "TW",
				Pattern: `(?i)台|新北|彰化|TW|Taiwan|🇹🇼`,
				Icon:    iconBase + "Taiwan.png",
			},
			{
				Name:    "United States",
				Code:    "US",
				Pattern: `(?i)美国|美|US|United States|🇺🇸`,
				Icon:    iconBase + "United_States.png",
			},
			{
				Name:    "Japan",
				Code:    "JP",
				Pattern: `(?i)日本|川日|东京|大阪|泉日|埼玉|沪日|深日|JP|Japan|Tokyo|Osaka|🇯🇵`,
				Icon:    iconBase + "Japan.png",
			},
			{
				Name:    "Singapore",
				Code:    "SG",
				Pattern: `(?i)新加坡|坡|狮城|SG|Singapore|🇸🇬`,
				Icon:    iconBase + "Singapore.png",
			},
		},
		Exclude: `(?i)家宽|家庭|家庭宽带|商宽|商业宽带|星链|Starlink|落地|Broadband|Landing`,
	}
}

// Lookup returns the rule with the given name.
func (t Table) Lookup(name string) (Rule, bool) {
	for _, r := range t.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

// Names returns the region names in priority order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t.Rules))
	for _, r := range t.Rules {
		names = append(names, r.Name)
	}
	return names
}

// stripInlineFlags removes a leading (?i) so patterns can be joined into one
// alternation under a single flag group.
func stripInlineFlags(pattern string) string {
	return strings.TrimPrefix(pattern, "(?i)")
}

// alternation joins the exclusion pattern (when requested) and every region
// pattern into "a|b|c" without inline flags.
func (t Table) alternation(withExclude bool) string {
	parts := make([]string, 0, len(t.Rules)+1)
	if withExclude && t.Exclude != "" {
		parts = append(parts, stripInlineFlags(t.Exclude))
	}
	for _, r := range t.Rules {
		parts = append(parts, stripInlineFlags(r.Pattern))
	}
	return strings.Join(parts, "|")
}

// OtherPattern returns a pattern matching exactly the names that classify as
// Other: no region pattern matches and, when excludeISP is set, the exclusion
// pattern does not match either.
func (t Table) OtherPattern(excludeISP bool) string {
	return "(?i)^(?!.*(?:" + t.alternation(excludeISP) + ")).*$"
}

// OtherExcludePattern returns the complement of OtherPattern, suitable as an
// exclude filter for a group that should only contain Other nodes.
func (t Table) OtherExcludePattern(excludeISP bool) string {
	return "(?i)" + t.alternation(excludeISP)
}
