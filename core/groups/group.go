// Package groups composes the proxy-group catalog shared by every renderer.
//
// # Tiers
//
// Compose returns three tiers concatenated in a fixed order:
//
//  1. Base: "Proxy" (select over the region groups, "Manual" and DIRECT) and
//     "Manual" (select over every proxy).
//  2. Policy: one select group per application or service. Most of them share
//     the canonical member list [Proxy, region groups..., Manual, Direct].
//     The three regional media groups switch to a short list led by their
//     region group when that region is present.
//  3. Region: one url-test group per named region plus a select group for
//     the catch-all "Other" bucket.
//
// Member lists are plain slices owned by each group. The Shared annotation
// only tells YAML renderers which groups carry the canonical list, so they can
// emit it once as an anchor and alias it elsewhere.
package groups

import (
	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

const composerLogLevel = debuglog.UseGlobal

func groupsLog(level debuglog.Level, format string, args ...interface{}) {
	debuglog.Log("Groups", level, composerLogLevel, format, args...)
}

// Well-known group names.
const (
	Proxy  = "Proxy"
	Manual = "Manual"
	Direct = "Direct"
	Global = "GLOBAL"
	Google = "Google"
)

// Kind is the proxy-group type.
type Kind string

const (
	KindSelect  Kind = "select"
	KindURLTest Kind = "url-test"
)

// HealthCheck is the latency test run by a url-test group.
type HealthCheck struct {
	URL       string
	Interval  int // seconds
	Tolerance int // milliseconds
	Lazy      bool
}

// SharedRole marks groups whose member list equals the canonical list.
type SharedRole int

const (
	SharedNone SharedRole = iota
	// SharedSource is the first group carrying the canonical list.
	SharedSource
	// SharedAlias groups carry a copy of the canonical list.
	SharedAlias
)

// ProxyGroup is one composed group.
type ProxyGroup struct {
	Name          string
	Icon          string
	Kind          Kind
	Members       []string
	IncludeAll    bool
	Filter        string
	ExcludeFilter string
	HealthCheck   *HealthCheck
	Shared        SharedRole
	// Region is the summary name for region-tier groups, "" otherwise.
	Region string
}

// IsRegion reports whether g belongs to the region tier.
func (g ProxyGroup) IsRegion() bool {
	return g.Region != ""
}

// IsSentinel reports whether member is a built-in policy rather than a group.
func IsSentinel(member string) bool {
	switch member {
	case constants.PolicyDirect, constants.PolicyReject, constants.PolicyRejectDrop:
		return true
	}
	return false
}

// Find returns the group named name.
func Find(groups []ProxyGroup, name string) (ProxyGroup, bool) {
	for _, g := range groups {
		if g.Name == name {
			return g, true
		}
	}
	return ProxyGroup{}, false
}

// Names returns the group names in order.
func Names(groups []ProxyGroup) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Name)
	}
	return out
}

// Canonical returns the member list of the SharedSource group, or nil.
func Canonical(groups []ProxyGroup) []string {
	for _, g := range groups {
		if g.Shared == SharedSource {
			return g.Members
		}
	}
	return nil
}

// Without returns groups minus the named ones, preserving order.
func Without(groups []ProxyGroup, names ...string) []ProxyGroup {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := make([]ProxyGroup, 0, len(groups))
	for _, g := range groups {
		if !skip[g.Name] {
			out = append(out, g)
		}
	}
	return out
}
