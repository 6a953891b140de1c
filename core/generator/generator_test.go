package generator

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"

	"proxyrules/core/region"
	"proxyrules/internal/constants"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, constants.OutputDirName, s.OutputDir)
	assert.Equal(t, constants.DefaultMinRegionCount, s.MinRegionCount)
	assert.True(t, s.ExcludeISP)
	assert.Empty(t, s.BaseDir)
	assert.Empty(t, s.RulesDir)
	assert.Equal(t, s.MinRegionCount, s.Threshold())

	tools, err := s.ToolList()
	require.NoError(t, err)
	assert.Equal(t, []string{constants.ToolMihomo, constants.ToolStash, constants.ToolLoon, constants.ToolSurge}, tools)
	assert.NoError(t, s.Validate())
}

func TestParseSettingsJSONC(t *testing.T) {
	s, err := ParseSettings([]byte(`{
	// node list exported from the subscription
	"nodes_file": "nodes.txt",
	/* only the YAML tools */
	"tools": ["Mihomo", "clash", "STASH"],
	"min_region_count": 0,
	"exclude_isp": false,
	"script_threshold": 3
}`))
	require.NoError(t, err)
	assert.Equal(t, "nodes.txt", s.NodesFile)
	assert.Equal(t, constants.OutputDirName, s.OutputDir, "missing fields keep their defaults")
	assert.Equal(t, 0, s.MinRegionCount)
	assert.False(t, s.ExcludeISP)
	assert.Equal(t, 3, s.Threshold())

	tools, err := s.ToolList()
	require.NoError(t, err)
	assert.Equal(t, []string{constants.ToolMihomo, constants.ToolStash}, tools)
}

func TestParseSettingsErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []string
	}{
		{"unknown tool", `{"tools": ["mihomo", "quanx"]}`, []string{`unknown tool "quanx"`}},
		{"no tools", `{"tools": []}`, []string{"no tools selected"}},
		{"several problems", `{"output_dir": " ", "min_region_count": -1}`, []string{"output_dir is empty", "min_region_count must not be negative"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSettings([]byte(tt.data))
			require.NoError(t, err, "parsing does not validate")
			err = s.Validate()
			require.Error(t, err)
			for _, w := range tt.want {
				assert.ErrorContains(t, err, w)
			}
		})
	}

	_, err := ParseSettings([]byte(`{"tools": [}`))
	assert.ErrorContains(t, err, "failed to parse settings")
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadSettings(filepath.Join(dir, constants.SettingsFileName))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	path := filepath.Join(dir, constants.SettingsFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"output_dir": "out" // trailing comment
}`), 0o644))
	s, err = LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "out", s.OutputDir)

	require.NoError(t, os.WriteFile(path, []byte(`{"tools": ["nope"]}`), 0o644))
	s, err = LoadSettings(path)
	require.NoError(t, err)
	assert.ErrorContains(t, s.Validate(), `unknown tool "nope"`)

	require.NoError(t, os.WriteFile(path, []byte(`{"tools": [`), 0o644))
	_, err = LoadSettings(path)
	assert.ErrorContains(t, err, path)
}

func writeNodes(t *testing.T, path string, names ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(names, "\n")+"\n"), 0o644))
}

func newTestGenerator(t *testing.T, nodes ...string) (*Generator, string) {
	t.Helper()
	dir := t.TempDir()
	s := DefaultSettings()
	s.OutputDir = filepath.Join(dir, "out")
	if len(nodes) > 0 {
		s.NodesFile = filepath.Join(dir, "nodes.txt")
		writeNodes(t, s.NodesFile, nodes...)
	}
	g, err := New(s)
	require.NoError(t, err)
	return g, s.OutputDir
}

func TestRunWritesEveryFile(t *testing.T) {
	g, out := newTestGenerator(t, "HK 01", "HK 02", "US 01", "US 02", "JP 01", "Mystery", "家宽 HK")

	report, err := g.Run(context.Background())
	require.NoError(t, err)

	want := []string{
		"Loon/Loon_config.lcf",
		"Loon/Loon_config_no_ipv6.lcf",
		"Mihomo/mihomo_config_ipv6-0_full-0.yaml",
		"Mihomo/mihomo_config_ipv6-0_full-1.yaml",
		"Mihomo/mihomo_config_ipv6-1_full-0.yaml",
		"Mihomo/mihomo_config_ipv6-1_full-1.yaml",
		"Mihomo/mihomo_convert_args.js",
		"Mihomo/mihomo_convert_ipv6-0_full-0.js",
		"Mihomo/mihomo_convert_ipv6-0_full-1.js",
		"Mihomo/mihomo_convert_ipv6-1_full-0.js",
		"Mihomo/mihomo_convert_ipv6-1_full-1.js",
		"Stash/Stash_config_full.yaml",
		"Stash/Stash_config_full_no_ipv6.yaml",
		"Stash/Stash_override.stoverride",
		"Stash/Stash_override_no_ipv6.stoverride",
		"Surge/Surge_config.conf",
		"Surge/Surge_config_no_ipv6.conf",
	}
	got := make([]string, 0, len(report.Files))
	for _, f := range report.Files {
		got = append(got, filepath.ToSlash(f))
		info, err := os.Stat(filepath.Join(out, f))
		require.NoError(t, err, f)
		assert.NotZero(t, info.Size(), f)
	}
	sort.Strings(got)
	assert.Equal(t, want, got)
	assert.Equal(t, len(want), report.Changed)

	assert.Equal(t, 7, report.Nodes)
	assert.Equal(t, map[string]int{"Hong Kong": 2, "United States": 2, "Japan": 1, region.OtherName: 1}, report.Counts)
	assert.Equal(t, []string{"Hong Kong Nodes", "United States Nodes", "Other Nodes"}, region.GroupNames(report.Summaries))

	data, err := os.ReadFile(filepath.Join(out, "Mihomo", "mihomo_config_ipv6-1_full-0.yaml"))
	require.NoError(t, err)
	var cfg struct {
		ProxyGroups []struct {
			Name string `yaml:"name"`
		} `yaml:"proxy-groups"`
	}
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	var names []string
	for _, pg := range cfg.ProxyGroups {
		names = append(names, pg.Name)
	}
	assert.Contains(t, names, "Hong Kong Nodes")
	assert.NotContains(t, names, "Japan Nodes")

	script, err := os.ReadFile(filepath.Join(out, "Mihomo", "mihomo_convert_args.js"))
	require.NoError(t, err)
	assert.Contains(t, string(script), "Japan Nodes", "scripts carry every region")

	again, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Changed, "output is deterministic")
}

func TestRunWithoutNodesUsesPlaceholders(t *testing.T) {
	g, _ := newTestGenerator(t)
	report, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Nodes)
	assert.Len(t, report.Summaries, len(region.DefaultTable().Rules)+1)
}

func TestRunPlaceholdersFollowExcludeISP(t *testing.T) {
	for _, excludeISP := range []bool{true, false} {
		dir := t.TempDir()
		s := DefaultSettings()
		s.OutputDir = dir
		s.Tools = []string{constants.ToolMihomo}
		s.ExcludeISP = excludeISP
		g, err := New(s)
		require.NoError(t, err)

		report, err := g.Run(context.Background())
		require.NoError(t, err)
		other := report.Summaries[len(report.Summaries)-1]
		require.True(t, other.IsOther())
		assert.Equal(t, excludeISP, strings.Contains(other.ExcludePattern, "Starlink"), "exclude_isp=%v", excludeISP)

		// Without nodes the configs carry the placeholder Other group.
		data, err := os.ReadFile(filepath.Join(dir, constants.ToolMihomo, "mihomo_config_ipv6-1_full-0.yaml"))
		require.NoError(t, err)
		var cfg struct {
			ProxyGroups []struct {
				Name          string `yaml:"name"`
				ExcludeFilter string `yaml:"exclude-filter"`
			} `yaml:"proxy-groups"`
		}
		require.NoError(t, yaml.Unmarshal(data, &cfg))
		found := false
		for _, pg := range cfg.ProxyGroups {
			if pg.Name == "Other Nodes" {
				found = true
				assert.Equal(t, excludeISP, strings.Contains(pg.ExcludeFilter, "Starlink"), "exclude_isp=%v", excludeISP)
			}
		}
		assert.True(t, found)
	}
}

func TestRunSelectedTools(t *testing.T) {
	dir := t.TempDir()
	s := DefaultSettings()
	s.OutputDir = dir
	s.Tools = []string{"surge"}
	g, err := New(s)
	require.NoError(t, err)

	report, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Files, 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, constants.ToolSurge, entries[0].Name())
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()

	s := DefaultSettings()
	s.OutputDir = dir
	s.NodesFile = filepath.Join(dir, "missing.txt")
	g, err := New(s)
	require.NoError(t, err)
	_, err = g.Run(context.Background())
	assert.ErrorContains(t, err, "failed to read node list")

	s = DefaultSettings()
	s.OutputDir = dir
	s.BaseDir = filepath.Join(dir, "nobase")
	g, err = New(s)
	require.NoError(t, err)
	_, err = g.Run(context.Background())
	assert.ErrorContains(t, err, "failed to load base settings")

	s = DefaultSettings()
	s.OutputDir = dir
	g, err = New(s)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := g.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Files)

	_, err = New(Settings{})
	assert.Error(t, err)
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, constants.SettingsFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"tools": ["loon"]}`), 0o644))

	g, err := NewFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, g.SettingsFile())
	assert.Equal(t, []string{"loon"}, g.Settings().Tools)
}

func TestNewFromFileValidatesAfterOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, constants.SettingsFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"tools": [], "output_dir": "out"}`), 0o644))

	_, err := NewFromFile(path)
	assert.ErrorContains(t, err, "no tools selected")

	g, err := NewFromFile(path, func(s *Settings) { s.Tools = []string{"mihomo"} })
	require.NoError(t, err)
	assert.Equal(t, []string{"mihomo"}, g.Settings().Tools)

	_, err = NewFromFile(path, func(s *Settings) { s.OutputDir = "" })
	assert.ErrorContains(t, err, "output_dir is empty")
}

func TestWatchRegenerates(t *testing.T) {
	defer goleak.VerifyNone(t)

	g, _ := newTestGenerator(t, "HK 01", "HK 02")
	nodesFile := g.Settings().NodesFile

	ctx, cancel := context.WithCancel(context.Background())
	reports := make(chan *Report, 64)
	done := make(chan error, 1)
	go func() {
		done <- g.Watch(ctx, 50*time.Millisecond, func(r *Report, err error) {
			if err != nil {
				return
			}
			select {
			case reports <- r:
			default:
			}
		})
	}()

	waitReport := func() *Report {
		t.Helper()
		select {
		case r := <-reports:
			return r
		case <-time.After(10 * time.Second):
			t.Fatal("no generation run")
			return nil
		}
	}

	first := waitReport()
	assert.Equal(t, 2, first.Counts["Hong Kong"])

	writeNodes(t, nodesFile, "HK 01", "HK 02", "JP 01", "JP 02", "JP 03")
	var second *Report
	for second == nil || second.Counts["Japan"] != 3 {
		second = waitReport()
	}
	assert.Equal(t, []string{"Hong Kong Nodes", "Japan Nodes"}, region.GroupNames(second.Summaries))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchSetRelevance(t *testing.T) {
	dir := t.TempDir()
	s := DefaultSettings()
	s.NodesFile = filepath.Join(dir, "nodes.txt")
	s.RulesDir = filepath.Join(dir, "rules")
	ws := newWatchSet(filepath.Join(dir, constants.SettingsFileName), s)

	assert.True(t, ws.relevant(s.NodesFile))
	assert.True(t, ws.relevant(filepath.Join(dir, constants.SettingsFileName)))
	assert.True(t, ws.relevant(filepath.Join(dir, "rules", constants.RulesFileName)))
	assert.False(t, ws.relevant(filepath.Join(dir, "rules", ".RemoteRules.yaml.swp")))
	assert.False(t, ws.relevant(filepath.Join(dir, "other.txt")))
	assert.ElementsMatch(t, []string{dir, s.RulesDir}, ws.watchDirs())
}
