package render

import (
	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

// StashMetadata heads a Stash override file.
type StashMetadata struct {
	Name     string `yaml:"name"`
	Desc     string `yaml:"desc"`
	Author   string `yaml:"author"`
	Icon     string `yaml:"icon"`
	Category string `yaml:"category"`
}

// DefaultStashMetadata is written into every Stash override.
var DefaultStashMetadata = StashMetadata{
	Name:     "proxyrules Stash Override",
	Desc:     "Rule-based policy groups and remote rule sets",
	Author:   "proxyrules",
	Icon:     "https://fastly.jsdelivr.net/gh/shindgewongxj/WHATSINStash@master/icon/substore.png",
	Category: "Override",
}

const stashReplaceMarker = "#!replace"

var stashSections = []string{"dns", "proxy-groups", "rule-providers", "rules"}

const stashProvidersBlock = `proxy-providers:
# Your subscription proxy providers here
# Example:
#   url: https://example.com/proxy.yaml
#   interval: 600

proxies:

`

// Stash renders a Stash override, or a full config when b.Full is set.
// GLOBAL is left out and the dns block has no enable key.
func Stash(b Bundle) ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	doc := newDocument()
	if b.Full {
		doc.set("mode", strNode("rule"))
		doc.set("log-level", strNode("info"))
	} else {
		doc.inline(DefaultStashMetadata)
	}

	dns := b.Base.DNS(b.IPv6, true)
	dns.Enable = nil
	doc.setValue("dns", dns)

	groupSeq, err := groupsNode(withoutGlobal(b.Groups))
	if err != nil {
		return nil, err
	}
	doc.set("proxy-groups", groupSeq)

	providerMap, err := providersNode(b.Catalog.Providers(constants.ToolStash))
	if err != nil {
		return nil, err
	}
	doc.set("rule-providers", providerMap)
	doc.setValue("rules", ruleLines(b, constants.ToolStash))

	out, err := doc.bytes()
	if err != nil {
		return nil, err
	}
	text := spaceSections(string(out), stashSections...)
	if b.Full {
		text = insertBefore(text, "proxy-groups", stashProvidersBlock)
	} else {
		text = markSections(text, stashReplaceMarker, stashSections...)
	}

	renderLog(debuglog.LevelVerbose, "Stash: ipv6=%v full=%v", b.IPv6, b.Full)
	return []byte(text), nil
}
