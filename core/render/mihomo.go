package render

import (
	"proxyrules/core/base"
	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

var mihomoSections = []string{"dns", "sniffer", "geodata-mode", "proxy-groups", "rule-providers", "rules"}

// Mihomo renders a Mihomo YAML config. Without Full it is an override that
// leaves ports and controller settings to the client.
func Mihomo(b Bundle) ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	doc := newDocument()
	if b.Full {
		doc.inline(b.Base.General(b.IPv6))
	}
	doc.setValue("dns", b.Base.DNS(b.IPv6, true))
	doc.setValue("sniffer", b.Base.Sniffer())
	doc.set("geodata-mode", boolNode(true))
	if b.Full {
		doc.set("geo-auto-update", boolNode(true))
		doc.set("geo-update-interval", intNode(base.GeoUpdateInterval))
	}
	doc.setValue("geox-url", b.Base.GeoX())

	groupSeq, err := groupsNode(b.Groups)
	if err != nil {
		return nil, err
	}
	doc.set("proxy-groups", groupSeq)

	providers := b.Catalog.Providers(constants.ToolMihomo)
	providerMap, err := providersNode(providers)
	if err != nil {
		return nil, err
	}
	doc.set("rule-providers", providerMap)
	doc.setValue("rules", ruleLines(b, constants.ToolMihomo))

	out, err := doc.bytes()
	if err != nil {
		return nil, err
	}
	renderLog(debuglog.LevelVerbose, "Mihomo: %d groups, %d providers (ipv6=%v full=%v)",
		len(b.Groups), len(providers), b.IPv6, b.Full)
	return []byte(spaceSections(string(out), mihomoSections...)), nil
}

// ruleLines is the rules list shared by Mihomo and Stash.
func ruleLines(b Bundle, tool string) []string {
	lines := b.Catalog.RuleSetLines(tool)
	return append(lines, b.Base.FinalRules()...)
}
