package groups

import "proxyrules/internal/constants"

const iconCDN = "https://cdn.jsdelivr.net/gh/"

func qure(name string) string {
	return iconCDN + "Koolson/Qure@master/IconSet/Color/" + name + ".png"
}

func piancat(name string) string {
	return iconCDN + "PianCat/CustomProxyRuleset@main/Icons/" + name + ".png"
}

// MemberSet selects how a policy group's member list is built.
type MemberSet int

const (
	// CanonicalList is [Proxy, region groups..., Manual, Direct].
	CanonicalList MemberSet = iota
	// DirectFirst is [Direct, region groups..., Manual].
	DirectFirst
	// Fixed uses Policy.Members verbatim.
	Fixed
)

// Policy is one entry of the application/service group catalog.
type Policy struct {
	Name    string
	Icon    string
	Members MemberSet
	// Fixed holds the member list when Members == Fixed.
	Fixed []string
	// MediaRegion names the region whose presence swaps the member list to
	// [<region> Nodes, Proxy, Manual, Direct].
	MediaRegion string
	IncludeAll  bool
}

// DefaultPolicies returns the built-in policy catalog in output order.
func DefaultPolicies() []Policy {
	return []Policy{
		{Name: "AI", Icon: qure("AI")},
		{Name: "Telegram", Icon: qure("Telegram")},
		{Name: "YouTube", Icon: qure("YouTube")},
		{Name: "Netflix", Icon: qure("Netflix")},
		{Name: "Spotify", Icon: qure("Spotify")},
		{Name: "TikTok", Icon: qure("TikTok")},
		{Name: "Steam", Icon: qure("Steam")},
		{Name: "Game", Icon: qure("Game")},
		{Name: "E-Hentai", Icon: piancat("Ehentai")},
		{Name: "PornSite", Icon: qure("Pornhub")},
		{Name: "US Media", Icon: qure("United_States"), MediaRegion: "United States"},
		{Name: "Taiwan Media", Icon: qure("Taiwan"), MediaRegion: "Taiwan"},
		{Name: "Japan Media", Icon: qure("Japan"), MediaRegion: "Japan"},
		{Name: "Global Media", Icon: qure("DomesticMedia")},
		{Name: "Apple", Icon: qure("Apple"), Members: DirectFirst},
		{Name: "Microsoft", Icon: qure("Microsoft"), Members: DirectFirst},
		{Name: Google, Icon: qure("Google_Search")},
		{Name: "Google FCM", Icon: piancat("Firebase"), Members: Fixed, Fixed: []string{Google, Direct}},
		{Name: "Sogou Privacy", Icon: piancat("Sougou"), Members: Fixed, Fixed: []string{Direct, constants.PolicyReject}},
		{Name: "ADBlock", Icon: qure("AdBlack"), Members: Fixed, Fixed: []string{constants.PolicyRejectDrop, constants.PolicyReject, Direct}},
		{Name: Direct, Icon: qure("Direct"), Members: Fixed, Fixed: []string{constants.PolicyDirect, Proxy}},
		{Name: Global, Icon: qure("Global"), IncludeAll: true},
	}
}

// PolicyNames returns the names of policies in order.
func PolicyNames(policies []Policy) []string {
	out := make([]string, 0, len(policies))
	for _, p := range policies {
		out = append(out, p.Name)
	}
	return out
}
