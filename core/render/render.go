// Package render turns a composed group catalog, the rule catalog and the
// base settings into the files each consumer tool loads.
//
// Mihomo and Stash are YAML built as yaml.v3 node trees so the shared policy
// member list can be written once as an anchor. Loon and Surge are INI-like
// text. The Mihomo override script embeds the same data as JSON.
package render

import (
	"fmt"

	"proxyrules/core/base"
	"proxyrules/core/groups"
	"proxyrules/core/region"
	"proxyrules/core/rules"
	"proxyrules/internal/debuglog"
)

const renderLogLevel = debuglog.UseGlobal

func renderLog(level debuglog.Level, format string, args ...interface{}) {
	debuglog.Log("Render", level, renderLogLevel, format, args...)
}

// Bundle is everything one rendered file is built from.
type Bundle struct {
	Groups    []groups.ProxyGroup
	Summaries []region.Summary
	Catalog   *rules.Catalog
	Base      *base.Config
	IPv6      bool
	// Full selects a standalone config over an override.
	Full bool
}

func (b Bundle) validate() error {
	if len(b.Groups) == 0 {
		return fmt.Errorf("bundle has no proxy groups")
	}
	if b.Catalog == nil {
		return fmt.Errorf("bundle has no rule catalog")
	}
	if b.Base == nil {
		return fmt.Errorf("bundle has no base settings")
	}
	return nil
}

// summary returns the region summary behind a region-tier group.
func (b Bundle) summary(g groups.ProxyGroup) (region.Summary, bool) {
	for _, s := range b.Summaries {
		if s.Name == g.Region {
			return s, true
		}
	}
	return region.Summary{}, false
}

// withoutGlobal drops the GLOBAL group, which only Mihomo understands.
func withoutGlobal(gs []groups.ProxyGroup) []groups.ProxyGroup {
	return groups.Without(gs, groups.Global)
}
