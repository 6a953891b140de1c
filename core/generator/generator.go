// Package generator runs the whole pipeline: it loads the settings, base
// files, rule catalog and node list, classifies and groups the nodes once,
// and writes every config variant of every selected tool.
package generator

import (
	"context"
	"fmt"
	"path/filepath"

	"proxyrules/assets"
	"proxyrules/core/base"
	"proxyrules/core/groups"
	"proxyrules/core/nodes"
	"proxyrules/core/region"
	"proxyrules/core/render"
	"proxyrules/core/rules"
	"proxyrules/core/services"
	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

const generatorLogLevel = debuglog.UseGlobal

func generatorLog(level debuglog.Level, format string, args ...interface{}) {
	debuglog.Log("Generator", level, generatorLogLevel, format, args...)
}

// Report describes one completed run.
type Report struct {
	// Nodes is the number of names read from the node list.
	Nodes int
	// Counts holds the per-bucket node counts, Other included.
	Counts map[string]int
	// Summaries are the regions that received a group.
	Summaries []region.Summary
	// Files lists every written file relative to the output directory, in
	// write order.
	Files []string
	// Changed is how many files differed from what was on disk.
	Changed int
}

// Generator holds the compiled region table. It is safe to Run repeatedly;
// every run reloads its inputs.
type Generator struct {
	settings   Settings
	source     string
	overrides  []func(*Settings)
	table      region.Table
	aggregator *region.Aggregator
	composer   *groups.Composer
}

// New validates s and compiles the region table.
func New(s Settings) (*Generator, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	table := region.DefaultTable()
	classifier, err := region.NewClassifier(table)
	if err != nil {
		return nil, fmt.Errorf("failed to compile region table: %w", err)
	}
	return &Generator{
		settings:   s,
		table:      table,
		aggregator: region.NewAggregator(classifier),
		composer:   groups.NewComposer(table, groups.DefaultComposerOptions()),
	}, nil
}

// NewFromFile loads settings from path, applies overrides in order and
// remembers both so Watch can reload the file when it changes.
func NewFromFile(path string, overrides ...func(*Settings)) (*Generator, error) {
	s, err := loadWithOverrides(path, overrides)
	if err != nil {
		return nil, err
	}
	g, err := New(s)
	if err != nil {
		return nil, err
	}
	g.source = path
	g.overrides = overrides
	return g, nil
}

func loadWithOverrides(path string, overrides []func(*Settings)) (Settings, error) {
	s, err := LoadSettings(path)
	if err != nil {
		return s, err
	}
	for _, o := range overrides {
		o(&s)
	}
	return s, nil
}

// Settings returns the settings of the next run.
func (g *Generator) Settings() Settings {
	return g.settings
}

// SettingsFile returns the settings path given to NewFromFile, or "".
func (g *Generator) SettingsFile() string {
	return g.source
}

// LoadCatalog loads the rule catalog named by s, or the embedded one.
func LoadCatalog(s Settings) (*rules.Catalog, error) {
	if s.RulesDir == "" {
		return rules.LoadCatalogFS(assets.Rules())
	}
	return rules.LoadCatalogDir(s.RulesDir)
}

type inputs struct {
	base    *base.Config
	catalog *rules.Catalog
	names   []string
}

func (g *Generator) load() (inputs, error) {
	var in inputs
	var err error
	if in.base, err = base.Load(g.settings.BaseDir); err != nil {
		return in, fmt.Errorf("failed to load base settings: %w", err)
	}
	if in.catalog, err = LoadCatalog(g.settings); err != nil {
		return in, err
	}
	if g.settings.NodesFile != "" {
		if in.names, err = nodes.LoadNames(g.settings.NodesFile); err != nil {
			return in, err
		}
	} else {
		generatorLog(debuglog.LevelInfo, "no node list configured, using placeholder regions")
	}
	return in, nil
}

// output is one file of the run.
type output struct {
	tool   string
	name   string
	render func() ([]byte, error)
}

func bit(v bool) int {
	if v {
		return 1
	}
	return 0
}

func ipv6Suffix(ipv6 bool, ext string) string {
	if ipv6 {
		return ext
	}
	return "_no_ipv6" + ext
}

// outputs lists the files of every selected tool. live is built from the node
// list; placeholder carries every region and feeds the scripts, which prune
// regions at run time.
func (g *Generator) outputs(tools []string, live, placeholder render.Bundle) []output {
	variant := func(b render.Bundle, ipv6, full bool) render.Bundle {
		b.IPv6, b.Full = ipv6, full
		return b
	}
	exclude := ""
	if g.settings.ExcludeISP {
		exclude = g.table.Exclude
	}
	policies := g.composer.Options().Policies

	var out []output
	for _, tool := range tools {
		switch tool {
		case constants.ToolMihomo:
			for _, ipv6 := range []bool{false, true} {
				for _, full := range []bool{false, true} {
					b := variant(live, ipv6, full)
					out = append(out, output{tool, fmt.Sprintf("mihomo_config_ipv6-%d_full-%d.yaml", bit(ipv6), bit(full)),
						func() ([]byte, error) { return render.Mihomo(b) }})
				}
			}
			argsBundle := variant(placeholder, true, false)
			out = append(out, output{tool, "mihomo_convert_args.js", func() ([]byte, error) {
				return render.Script(argsBundle, render.ScriptOptions{
					Args: true, Threshold: g.settings.Threshold(), Exclude: exclude, Policies: policies,
				})
			}})
			for _, ipv6 := range []bool{false, true} {
				for _, full := range []bool{false, true} {
					b := variant(placeholder, ipv6, full)
					out = append(out, output{tool, fmt.Sprintf("mihomo_convert_ipv6-%d_full-%d.js", bit(ipv6), bit(full)),
						func() ([]byte, error) {
							return render.Script(b, render.ScriptOptions{
								Threshold: g.settings.Threshold(), Exclude: exclude, Policies: policies,
							})
						}})
				}
			}
		case constants.ToolStash:
			for _, ipv6 := range []bool{true, false} {
				full := variant(live, ipv6, true)
				override := variant(live, ipv6, false)
				out = append(out,
					output{tool, "Stash_config_full" + ipv6Suffix(ipv6, ".yaml"), func() ([]byte, error) { return render.Stash(full) }},
					output{tool, "Stash_override" + ipv6Suffix(ipv6, ".stoverride"), func() ([]byte, error) { return render.Stash(override) }},
				)
			}
		case constants.ToolLoon:
			for _, ipv6 := range []bool{true, false} {
				b := variant(live, ipv6, true)
				out = append(out, output{tool, "Loon_config" + ipv6Suffix(ipv6, ".lcf"), func() ([]byte, error) { return render.Loon(b) }})
			}
		case constants.ToolSurge:
			for _, ipv6 := range []bool{true, false} {
				b := variant(live, ipv6, true)
				out = append(out, output{tool, "Surge_config" + ipv6Suffix(ipv6, ".conf"), func() ([]byte, error) { return render.Surge(b) }})
			}
		}
	}
	return out
}

// Run generates every file once. It stops between files when ctx is done.
func (g *Generator) Run(ctx context.Context) (*Report, error) {
	tools, err := g.settings.ToolList()
	if err != nil {
		return nil, err
	}
	in, err := g.load()
	if err != nil {
		return nil, err
	}

	s := g.settings
	report := &Report{
		Nodes:  len(in.names),
		Counts: g.aggregator.Aggregate(in.names, s.ExcludeISP),
	}
	defaults := g.aggregator.DefaultSummaries(s.ExcludeISP)
	summaries := g.aggregator.Summarize(in.names, s.ExcludeISP, s.MinRegionCount)
	if len(summaries) == 0 {
		summaries = defaults
	}
	report.Summaries = summaries
	generatorLog(debuglog.LevelInfo, "%d nodes, %d region groups: %v", len(in.names), len(summaries), region.GroupNames(summaries))

	live := render.Bundle{
		Groups:    g.composer.Compose(summaries),
		Summaries: summaries,
		Catalog:   in.catalog,
		Base:      in.base,
	}
	placeholder := render.Bundle{
		Groups:    g.composer.Compose(defaults),
		Summaries: defaults,
		Catalog:   in.catalog,
		Base:      in.base,
	}

	files, err := services.NewFileService(s.OutputDir)
	if err != nil {
		return nil, err
	}
	for _, o := range g.outputs(tools, live, placeholder) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		data, err := o.render()
		if err != nil {
			return report, fmt.Errorf("failed to render %s/%s: %w", o.tool, o.name, err)
		}
		changed, err := files.WriteFile(o.tool, o.name, data)
		if err != nil {
			return report, err
		}
		if changed {
			report.Changed++
		}
		report.Files = append(report.Files, filepath.Join(o.tool, o.name))
	}

	generatorLog(debuglog.LevelInfo, "wrote %d files (%d changed) to %s", len(report.Files), report.Changed, files.OutputDir)
	return report, nil
}
