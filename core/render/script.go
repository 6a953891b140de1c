package render

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"proxyrules/core/base"
	"proxyrules/core/groups"
	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

//go:embed script.js.tmpl
var scriptSource string

var scriptTemplate = template.Must(template.New("script").Parse(scriptSource))

// ScriptOptions configure the Mihomo override script.
type ScriptOptions struct {
	// Args makes the script read ipv6, full and threshold from $arguments.
	// Otherwise the bundle's IPv6 and Full are fixed in the script.
	Args bool
	// Threshold is the fixed minimum node count of a region group.
	Threshold int
	// Exclude is the ISP pattern; empty disables exclusion.
	Exclude string
	// Policies supply the media-region fallbacks; nil means the defaults.
	Policies []groups.Policy
}

type scriptRegion struct {
	Name    string `json:"name"`
	Group   string `json:"group"`
	Pattern string `json:"pattern,omitempty"`
	Other   bool   `json:"other,omitempty"`
}

type scriptProvider struct {
	Key      string        `json:"key"`
	Provider providerBlock `json:"provider"`
}

type scriptData struct {
	Exclude           string              `json:"exclude"`
	Regions           []scriptRegion      `json:"regions"`
	Groups            []yamlGroup         `json:"groups"`
	Canonical         []string            `json:"canonical"`
	Media             map[string]string   `json:"media"`
	Providers         []scriptProvider    `json:"providers"`
	Rules             []string            `json:"rules"`
	DNS               map[string]base.DNS `json:"dns"`
	Sniffer           base.Sniffer        `json:"sniffer"`
	GeoX              base.GeoX           `json:"geox"`
	General           base.General        `json:"general"`
	GeoUpdateInterval int                 `json:"geoUpdateInterval"`
}

type scriptParams struct {
	Version   string
	Args      bool
	IPv6      bool
	Full      bool
	Threshold int
	Data      string
}

// Script renders the Mihomo JavaScript override. It embeds the full group
// catalog and, at run time, counts the subscription's nodes per region, drops
// region groups below the threshold and removes references to them.
func Script(b Bundle, opts ScriptOptions) ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	data := buildScriptData(b, opts)
	var js bytes.Buffer
	enc := json.NewEncoder(&js)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("failed to encode script data: %w", err)
	}

	var out bytes.Buffer
	err := scriptTemplate.Execute(&out, scriptParams{
		Version:   constants.AppVersion,
		Args:      opts.Args,
		IPv6:      b.IPv6,
		Full:      b.Full,
		Threshold: opts.Threshold,
		Data:      strings.TrimRight(js.String(), "\n"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render script: %w", err)
	}

	renderLog(debuglog.LevelVerbose, "Script: %d groups, args=%v ipv6=%v full=%v", len(data.Groups), opts.Args, b.IPv6, b.Full)
	return out.Bytes(), nil
}

func buildScriptData(b Bundle, opts ScriptOptions) scriptData {
	data := scriptData{
		Exclude:   stripCaseFlag(opts.Exclude),
		Canonical: groups.Canonical(b.Groups),
		Media:     make(map[string]string),
		Rules:     ruleLines(b, constants.ToolMihomo),
		DNS: map[string]base.DNS{
			"ipv6": b.Base.DNS(true, true),
			"ipv4": b.Base.DNS(false, true),
		},
		Sniffer:           b.Base.Sniffer(),
		GeoX:              b.Base.GeoX(),
		General:           b.Base.General(true),
		GeoUpdateInterval: base.GeoUpdateInterval,
	}

	for _, g := range b.Groups {
		if !g.IsRegion() {
			continue
		}
		r := scriptRegion{Name: g.Region, Group: g.Name}
		if s, ok := b.summary(g); ok && s.IsOther() {
			r.Other = true
		} else {
			r.Pattern = stripCaseFlag(g.Filter)
		}
		data.Regions = append(data.Regions, r)
	}

	for _, g := range b.Groups {
		data.Groups = append(data.Groups, toYAMLGroup(g))
	}

	policies := opts.Policies
	if policies == nil {
		policies = groups.DefaultPolicies()
	}
	for _, p := range policies {
		for _, r := range data.Regions {
			if p.MediaRegion != "" && r.Name == p.MediaRegion {
				data.Media[p.Name] = r.Group
			}
		}
	}

	for _, p := range b.Catalog.Providers(constants.ToolMihomo) {
		data.Providers = append(data.Providers, scriptProvider{Key: p.Key, Provider: toProviderBlock(p)})
	}
	return data
}
