package groups

import (
	"proxyrules/core/region"
	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

// ComposerOptions tune Compose. The zero value is not useful; start from
// DefaultComposerOptions.
type ComposerOptions struct {
	// HealthCheck is copied into every named region group.
	HealthCheck HealthCheck
	// GroupSuffix turns a region name into its group name.
	GroupSuffix string
	// Policies is the policy tier catalog.
	Policies    []Policy
	// ExcludeISP shapes the Other group of the placeholder regions.
	ExcludeISP  bool
}

// DefaultComposerOptions returns the health check, suffix and policy catalog used by
// every generated config.
func DefaultComposerOptions() ComposerOptions {
	return ComposerOptions{
		HealthCheck: HealthCheck{
			URL:       "https://cp.cloudflare.com/generate_204",
			Interval:  60,
			Tolerance: 20,
			Lazy:      false,
		},
		GroupSuffix: region.GroupSuffix,
		Policies:    DefaultPolicies(),
		ExcludeISP:  true,
	}
}

// Composer builds the group catalog from region summaries.
type Composer struct {
	table region.Table
	opts  ComposerOptions
}

// NewComposer returns a Composer. table supplies the placeholder regions used
// when Compose receives no summaries.
func NewComposer(table region.Table, opts ComposerOptions) *Composer {
	if opts.GroupSuffix == "" {
		opts.GroupSuffix = region.GroupSuffix
	}
	if opts.Policies == nil {
		opts.Policies = DefaultPolicies()
	}
	return &Composer{table: table, opts: opts}
}

// Options returns the options c was built with.
func (c *Composer) Options() ComposerOptions {
	return c.opts
}

// RegionGroupName returns the group name for a region summary name.
func (c *Composer) RegionGroupName(name string) string {
	return name + c.opts.GroupSuffix
}

// Compose returns base, policy and region groups in that order. An empty
// summaries slice is replaced by the placeholder set so the catalog keeps its
// full shape before any node data exists.
func (c *Composer) Compose(summaries []region.Summary) []ProxyGroup {
	if len(summaries) == 0 {
		groupsLog(debuglog.LevelInfo, "no region summaries, using %d placeholder regions", len(c.table.Rules)+1)
		summaries = region.DefaultSummaries(c.table, c.opts.ExcludeISP)
	}

	regionGroups := make([]string, 0, len(summaries))
	for _, s := range summaries {
		regionGroups = append(regionGroups, c.RegionGroupName(s.Name))
	}

	out := make([]ProxyGroup, 0, 2+len(c.opts.Policies)+len(summaries))
	out = append(out, c.baseGroups(regionGroups)...)
	out = append(out, c.policyGroups(summaries, regionGroups)...)
	out = append(out, c.regionGroups(summaries)...)

	groupsLog(debuglog.LevelVerbose, "composed %d groups (%d regions)", len(out), len(summaries))
	return out
}

func (c *Composer) baseGroups(regionGroups []string) []ProxyGroup {
	members := make([]string, 0, len(regionGroups)+2)
	members = append(members, regionGroups...)
	members = append(members, Manual, constants.PolicyDirect)

	return []ProxyGroup{
		{
			Name:    Proxy,
			Icon:    qure("Proxy"),
			Kind:    KindSelect,
			Members: members,
		},
		{
			Name:       Manual,
			Icon:       qure("Round_Robin_1"),
			Kind:       KindSelect,
			IncludeAll: true,
		},
	}
}

func canonicalMembers(regionGroups []string) []string {
	out := make([]string, 0, len(regionGroups)+3)
	out = append(out, Proxy)
	out = append(out, regionGroups...)
	return append(out, Manual, Direct)
}

func directFirstMembers(regionGroups []string) []string {
	out := make([]string, 0, len(regionGroups)+2)
	out = append(out, Direct)
	out = append(out, regionGroups...)
	return append(out, Manual)
}

func (c *Composer) policyGroups(summaries []region.Summary, regionGroups []string) []ProxyGroup {
	out := make([]ProxyGroup, 0, len(c.opts.Policies))
	sourceSeen := false

	for _, p := range c.opts.Policies {
		g := ProxyGroup{
			Name:       p.Name,
			Icon:       p.Icon,
			Kind:       KindSelect,
			IncludeAll: p.IncludeAll,
		}

		switch {
		case p.Members == Fixed:
			g.Members = append([]string(nil), p.Fixed...)
		case p.Members == DirectFirst:
			g.Members = directFirstMembers(regionGroups)
		case p.MediaRegion != "" && region.Has(summaries, p.MediaRegion):
			g.Members = []string{c.RegionGroupName(p.MediaRegion), Proxy, Manual, Direct}
			groupsLog(debuglog.LevelVerbose, "%s uses %s directly", p.Name, p.MediaRegion)
		default:
			g.Members = canonicalMembers(regionGroups)
			if sourceSeen {
				g.Shared = SharedAlias
			} else {
				g.Shared = SharedSource
				sourceSeen = true
			}
		}
		out = append(out, g)
	}
	return out
}

func (c *Composer) regionGroups(summaries []region.Summary) []ProxyGroup {
	out := make([]ProxyGroup, 0, len(summaries))
	for _, s := range summaries {
		g := ProxyGroup{
			Name:       c.RegionGroupName(s.Name),
			Icon:       s.Icon,
			IncludeAll: true,
			Region:     s.Name,
		}
		if s.IsOther() {
			g.Kind = KindSelect
			g.ExcludeFilter = s.ExcludePattern
		} else {
			check := c.opts.HealthCheck
			g.Kind = KindURLTest
			g.Filter = s.Pattern
			g.HealthCheck = &check
		}
		out = append(out, g)
	}
	return out
}
