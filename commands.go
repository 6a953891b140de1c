package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"proxyrules/core/generator"
	"proxyrules/core/nodes"
	"proxyrules/core/region"
	"proxyrules/core/rules"
	"proxyrules/internal/constants"
)

// settingsFlags override fields of the settings file when set on the command
// line.
type settingsFlags struct {
	nodes      string
	output     string
	tools      []string
	minCount   int
	excludeISP bool
	baseDir    string
	rulesDir   string
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.nodes, "nodes", "n", "", "node list file (names, share links, base64 or a proxies document)")
	fl.StringVarP(&f.output, "output", "o", "", "output directory")
	fl.StringSliceVarP(&f.tools, "tools", "t", nil, "tools to generate: mihomo, stash, loon, surge")
	fl.IntVar(&f.minCount, "min-count", constants.DefaultMinRegionCount, "minimum nodes for a region group")
	fl.BoolVar(&f.excludeISP, "exclude-isp", true, "drop home broadband and landing nodes before counting")
	fl.StringVar(&f.baseDir, "base-dir", "", "directory with DNS.yaml, Ports.yaml, Fake_IP_Filter.yaml and Test_URL.yaml")
	fl.StringVar(&f.rulesDir, "rules-dir", "", "directory with RemoteRules.yaml and RemoteRulesLinkBase.yaml")
}

// override returns a settings override applying only the flags the user set.
func (f *settingsFlags) override(cmd *cobra.Command) func(*generator.Settings) {
	changed := cmd.Flags().Changed
	return func(s *generator.Settings) {
		if changed("nodes") {
			s.NodesFile = f.nodes
		}
		if changed("output") {
			s.OutputDir = f.output
		}
		if changed("tools") {
			s.Tools = append([]string(nil), f.tools...)
		}
		if changed("min-count") {
			s.MinRegionCount = f.minCount
		}
		if changed("exclude-isp") {
			s.ExcludeISP = f.excludeISP
		}
		if changed("base-dir") {
			s.BaseDir = f.baseDir
		}
		if changed("rules-dir") {
			s.RulesDir = f.rulesDir
		}
	}
}

func (f *settingsFlags) settings(cmd *cobra.Command) (generator.Settings, error) {
	s, err := generator.LoadSettings(settingsPath)
	if err != nil {
		return s, err
	}
	f.override(cmd)(&s)
	return s, s.Validate()
}

var (
	generateFlags settingsFlags
	watchFlags    settingsFlags
	classifyFlags settingsFlags
	resolveFlags  settingsFlags

	watchDebounce time.Duration
	resolveTool   string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write every config variant once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := generator.NewFromFile(settingsPath, generateFlags.override(cmd))
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(runContext(cmd))
		defer cancel()
		report, err := g.Run(ctx)
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), g.Settings(), report)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate whenever the settings, node list or catalog change",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := generator.NewFromFile(settingsPath, watchFlags.override(cmd))
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(runContext(cmd))
		defer cancel()
		out := cmd.OutOrStdout()
		return g.Watch(ctx, watchDebounce, func(report *generator.Report, err error) {
			stamp := time.Now().Format("15:04:05")
			if err != nil {
				fmt.Fprintf(out, "[%s] generation failed: %v\n", stamp, err)
				return
			}
			fmt.Fprintf(out, "[%s] ", stamp)
			printReport(out, g.Settings(), report)
		})
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify [name...]",
	Short: "Show the region of each node name and the resulting region groups",
	Long: `Classifies the names given as arguments, or the node list from the
settings or --nodes when no names are given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := classifyFlags.settings(cmd)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(args))
		for _, a := range args {
			names = append(names, nodes.Normalize(a))
		}
		if len(names) == 0 {
			if s.NodesFile == "" {
				return fmt.Errorf("no names given and no node list configured")
			}
			if names, err = nodes.LoadNames(s.NodesFile); err != nil {
				return err
			}
		}
		classifier, err := region.NewClassifier(region.DefaultTable())
		if err != nil {
			return err
		}
		return printClassification(cmd.OutOrStdout(), classifier, names, s)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [key...]",
	Short: "Show the download URL of rule sets for one tool",
	Long: `Resolves the given catalog keys, or every rule when none are given.
Rules without a URL for the tool are listed with "-" and are left out of
that tool's configs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := resolveFlags.settings(cmd)
		if err != nil {
			return err
		}
		tool, err := generator.ParseTool(resolveTool)
		if err != nil {
			return err
		}
		catalog, err := generator.LoadCatalog(s)
		if err != nil {
			return err
		}
		entries := catalog.Entries()
		if len(args) > 0 {
			entries = entries[:0:0]
			for _, key := range args {
				e, err := catalog.Lookup(key)
				if err != nil {
					return err
				}
				entries = append(entries, e)
			}
		}
		return printResolution(cmd.OutOrStdout(), catalog, entries, tool)
	},
}

func init() {
	generateFlags.register(generateCmd)
	watchFlags.register(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", generator.DefaultDebounce, "quiet period before regenerating")
	classifyFlags.register(classifyCmd)
	resolveFlags.register(resolveCmd)
	resolveCmd.Flags().StringVar(&resolveTool, "tool", constants.ToolMihomo, "tool to resolve for: mihomo, stash, loon, surge")
}

func printReport(w io.Writer, s generator.Settings, report *generator.Report) {
	groupNames := make([]string, 0, len(report.Summaries))
	for _, sum := range report.Summaries {
		groupNames = append(groupNames, fmt.Sprintf("%s (%d)", region.GroupName(sum.Name), sum.Count))
	}
	fmt.Fprintf(w, "%d nodes, regions: %s\n", report.Nodes, strings.Join(groupNames, ", "))
	fmt.Fprintf(w, "wrote %d files (%d changed) to %s\n", len(report.Files), report.Changed, s.OutputDir)
}

func printClassification(w io.Writer, c *region.Classifier, names []string, s generator.Settings) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBUCKET\tOUTCOME")
	for _, n := range names {
		res := c.Classify(n, s.ExcludeISP)
		bucket := res.Name()
		if bucket == "" {
			bucket = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", n, bucket, res.Outcome)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	summaries := region.NewAggregator(c).Summarize(names, s.ExcludeISP, s.MinRegionCount)
	fmt.Fprintf(w, "\nregion groups (min %d):\n", s.MinRegionCount)
	if len(summaries) == 0 {
		fmt.Fprintln(w, "  none, configs use the placeholder regions")
		return nil
	}
	for _, sum := range summaries {
		fmt.Fprintf(w, "  %s: %d\n", region.GroupName(sum.Name), sum.Count)
	}
	return nil
}

func printResolution(w io.Writer, c *rules.Catalog, entries []rules.RuleEntry, tool string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tPOLICY\tFORMAT\tURL")
	for _, e := range entries {
		r, ok := c.Resolve(e, tool)
		if !ok {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\n", e.Key, e.Policy)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Key, e.Policy, r.Format, r.URL)
	}
	return tw.Flush()
}

// runContext is the context commands use when cobra was not given one.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
