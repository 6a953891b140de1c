package groups

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyrules/core/region"
	"proxyrules/internal/constants"
)

func newTestComposer() *Composer {
	return NewComposer(region.DefaultTable(), DefaultComposerOptions())
}

func summarize(t *testing.T, names []string, minCount int) []region.Summary {
	t.Helper()
	c, err := region.NewClassifier(region.DefaultTable())
	require.NoError(t, err)
	return region.NewAggregator(c).Summarize(names, true, minCount)
}

func mustFind(t *testing.T, groups []ProxyGroup, name string) ProxyGroup {
	t.Helper()
	g, ok := Find(groups, name)
	require.True(t, ok, "group %q not found", name)
	return g
}

func TestComposeEmptyInputIsStructurallyComplete(t *testing.T) {
	c := newTestComposer()

	empty := c.Compose(nil)
	placeholder := c.Compose(region.DefaultSummaries(region.DefaultTable(), true))

	if diff := cmp.Diff(placeholder, empty); diff != "" {
		t.Errorf("Compose(nil) mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, empty, 2+len(DefaultPolicies())+len(region.DefaultTable().Rules)+1)
}

func TestComposePlaceholderHonorsExcludeISP(t *testing.T) {
	table := region.DefaultTable()
	opts := DefaultComposerOptions()
	opts.ExcludeISP = false

	other := mustFind(t, NewComposer(table, opts).Compose(nil), "Other Nodes")
	assert.Equal(t, table.OtherExcludePattern(false), other.ExcludeFilter)
	assert.NotContains(t, other.ExcludeFilter, "Starlink")

	other = mustFind(t, newTestComposer().Compose(nil), "Other Nodes")
	assert.Equal(t, table.OtherExcludePattern(true), other.ExcludeFilter)
}

func TestComposeTierOrder(t *testing.T) {
	c := newTestComposer()
	got := Names(c.Compose(summarize(t, []string{"Hong Kong 01", "Hong Kong 02", "Korea 01"}, 2)))

	want := []string{Proxy, Manual}
	want = append(want, PolicyNames(DefaultPolicies())...)
	want = append(want, "Hong Kong Nodes", "Other Nodes")

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("group order mismatch (-want +got):\n%s", diff)
	}
}

func TestComposeBaseTier(t *testing.T) {
	c := newTestComposer()
	groups := c.Compose(summarize(t, []string{"Hong Kong 01", "Hong Kong 02", "Tokyo 01", "Family Broadband Landing 01"}, 2))

	proxy := mustFind(t, groups, Proxy)
	assert.Equal(t, KindSelect, proxy.Kind)
	assert.Equal(t, []string{"Hong Kong Nodes", Manual, constants.PolicyDirect}, proxy.Members)

	manual := mustFind(t, groups, Manual)
	assert.True(t, manual.IncludeAll)
	assert.Empty(t, manual.Members)
}

func TestComposeSharedCanonicalList(t *testing.T) {
	c := newTestComposer()
	groups := c.Compose(summarize(t, []string{"Hong Kong 01", "Hong Kong 02", "Singapore 1", "Singapore 2"}, 2))

	canonical := Canonical(groups)
	assert.Equal(t, []string{Proxy, "Hong Kong Nodes", "Singapore Nodes", Manual, Direct}, canonical)

	sources := 0
	for _, g := range groups {
		switch g.Shared {
		case SharedSource:
			sources++
			assert.Equal(t, "AI", g.Name)
		case SharedAlias:
			assert.Equal(t, canonical, g.Members, g.Name)
		}
	}
	assert.Equal(t, 1, sources)

	global := mustFind(t, groups, Global)
	assert.Equal(t, SharedAlias, global.Shared)
	assert.True(t, global.IncludeAll)
}

func TestComposeMemberListsAreOwned(t *testing.T) {
	c := newTestComposer()
	groups := c.Compose(nil)

	ai := mustFind(t, groups, "AI")
	ai.Members[0] = "mutated"

	tg := mustFind(t, groups, "Telegram")
	assert.Equal(t, Proxy, tg.Members[0])
}

func TestComposeMediaSwap(t *testing.T) {
	c := newTestComposer()

	tests := []struct {
		name    string
		nodes   []string
		swapped string
	}{
		{"united states only", []string{"United States 01", "United States 02"}, "US Media"},
		{"taiwan only", []string{"Taiwan 01", "Taiwan 02"}, "Taiwan Media"},
		{"japan only", []string{"Tokyo 01", "Osaka 02"}, "Japan Media"},
		{"none", []string{"Hong Kong 01", "Hong Kong 02"}, ""},
	}
	media := map[string]string{
		"US Media":     "United States Nodes",
		"Taiwan Media": "Taiwan Nodes",
		"Japan Media":  "Japan Nodes",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := c.Compose(summarize(t, tt.nodes, 2))
			canonical := Canonical(groups)
			for name, regionGroup := range media {
				g := mustFind(t, groups, name)
				if name == tt.swapped {
					assert.Equal(t, []string{regionGroup, Proxy, Manual, Direct}, g.Members)
					assert.Equal(t, SharedNone, g.Shared)
				} else {
					assert.Equal(t, canonical, g.Members, name)
					assert.Equal(t, SharedAlias, g.Shared, name)
				}
			}
		})
	}
}

func TestComposeFixedAndDirectFirstPolicies(t *testing.T) {
	c := newTestComposer()
	groups := c.Compose(summarize(t, []string{"Hong Kong 01", "Hong Kong 02", "Korea 01"}, 2))

	for _, name := range []string{"Apple", "Microsoft"} {
		assert.Equal(t, []string{Direct, "Hong Kong Nodes", "Other Nodes", Manual}, mustFind(t, groups, name).Members)
	}
	assert.Equal(t, []string{Google, Direct}, mustFind(t, groups, "Google FCM").Members)
	assert.Equal(t, []string{Direct, constants.PolicyReject}, mustFind(t, groups, "Sogou Privacy").Members)
	assert.Equal(t, []string{constants.PolicyRejectDrop, constants.PolicyReject, Direct}, mustFind(t, groups, "ADBlock").Members)
	assert.Equal(t, []string{constants.PolicyDirect, Proxy}, mustFind(t, groups, Direct).Members)
}

func TestComposeRegionTier(t *testing.T) {
	c := newTestComposer()
	summaries := summarize(t, []string{"Hong Kong 01", "Hong Kong 02", "Korea 01"}, 2)
	groups := c.Compose(summaries)

	hk := mustFind(t, groups, "Hong Kong Nodes")
	want := ProxyGroup{
		Name:       "Hong Kong Nodes",
		Icon:       summaries[0].Icon,
		Kind:       KindURLTest,
		IncludeAll: true,
		Filter:     summaries[0].Pattern,
		HealthCheck: &HealthCheck{
			URL:       "https://cp.cloudflare.com/generate_204",
			Interval:  60,
			Tolerance: 20,
		},
		Region: "Hong Kong",
	}
	if diff := cmp.Diff(want, hk); diff != "" {
		t.Errorf("region group mismatch (-want +got):\n%s", diff)
	}

	other := mustFind(t, groups, "Other Nodes")
	assert.Equal(t, KindSelect, other.Kind)
	assert.True(t, other.IncludeAll)
	assert.Nil(t, other.HealthCheck)
	assert.Empty(t, other.Filter)
	assert.Equal(t, summaries[1].ExcludePattern, other.ExcludeFilter)
	assert.True(t, other.IsRegion())
}

func TestComposeMembersResolve(t *testing.T) {
	c := newTestComposer()
	for _, summaries := range [][]region.Summary{
		nil,
		summarize(t, []string{"Hong Kong 01", "Hong Kong 02", "Korea 01"}, 2),
		summarize(t, []string{"Taiwan 01"}, 1),
	} {
		groups := c.Compose(summaries)
		names := map[string]bool{}
		for _, g := range groups {
			assert.False(t, names[g.Name], "duplicate group %q", g.Name)
			names[g.Name] = true
		}
		for _, g := range groups {
			for _, m := range g.Members {
				assert.True(t, names[m] || IsSentinel(m), "%s references unknown member %q", g.Name, m)
			}
		}
	}
}

func TestComposerOptions(t *testing.T) {
	opts := DefaultComposerOptions()
	opts.HealthCheck = HealthCheck{URL: "https://www.gstatic.com/generate_204", Interval: 300, Tolerance: 50, Lazy: true}
	opts.GroupSuffix = " Pool"
	c := NewComposer(region.DefaultTable(), opts)

	groups := c.Compose(summarize(t, []string{"Japan 01", "Japan 02"}, 2))
	jp := mustFind(t, groups, "Japan Pool")
	require.NotNil(t, jp.HealthCheck)
	assert.Equal(t, opts.HealthCheck, *jp.HealthCheck)
	assert.Equal(t, []string{"Japan Pool", Proxy, Manual, Direct}, mustFind(t, groups, "Japan Media").Members)
}

func TestComposeMemberSets(t *testing.T) {
	opts := DefaultComposerOptions()
	opts.Policies = []Policy{
		{Name: "Mail", Members: CanonicalList},
		{Name: "Bank", Members: DirectFirst},
		{Name: "Ads", Members: Fixed, Fixed: []string{constants.PolicyReject, Direct}},
	}
	groups := NewComposer(region.DefaultTable(), opts).Compose(summarize(t, []string{"HK 01", "HK 02"}, 2))

	mail := mustFind(t, groups, "Mail")
	assert.Equal(t, []string{Proxy, "Hong Kong Nodes", Manual, Direct}, mail.Members)
	assert.Equal(t, SharedSource, mail.Shared)
	assert.Equal(t, mail.Members, Canonical(groups))

	assert.Equal(t, []string{Direct, "Hong Kong Nodes", Manual}, mustFind(t, groups, "Bank").Members)
	assert.Equal(t, []string{constants.PolicyReject, Direct}, mustFind(t, groups, "Ads").Members)
}

func TestWithout(t *testing.T) {
	groups := newTestComposer().Compose(nil)
	trimmed := Without(groups, Global)
	assert.Len(t, trimmed, len(groups)-1)
	_, ok := Find(trimmed, Global)
	assert.False(t, ok)
}
