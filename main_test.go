package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyrules/core/generator"
	"proxyrules/core/region"
	"proxyrules/core/rules"
	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	level := debuglog.GlobalLevel
	t.Cleanup(func() { debuglog.GlobalLevel = level })

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestGenerateCommand(t *testing.T) {
	dir := t.TempDir()
	nodesFile := filepath.Join(dir, "nodes.txt")
	require.NoError(t, os.WriteFile(nodesFile, []byte("HK 01\nHK 02\nSG 01\n"), 0o644))
	outDir := filepath.Join(dir, "Config")

	out, err := execute(t, "generate",
		"--config", filepath.Join(dir, constants.SettingsFileName),
		"--log-level", "off",
		"--nodes", nodesFile,
		"--output", outDir,
		"--tools", "loon,surge")
	require.NoError(t, err)
	assert.Contains(t, out, "3 nodes, regions: Hong Kong Nodes (2)")
	assert.Contains(t, out, "wrote 4 files (4 changed)")

	for _, f := range []string{"Loon/Loon_config.lcf", "Surge/Surge_config_no_ipv6.conf"} {
		_, err := os.Stat(filepath.Join(outDir, filepath.FromSlash(f)))
		assert.NoError(t, err, f)
	}
	_, err = os.Stat(filepath.Join(outDir, constants.ToolMihomo))
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateFlagsFixFileSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, constants.SettingsFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"tools": []}`), 0o644))
	nodesFile := filepath.Join(dir, "nodes.txt")
	require.NoError(t, os.WriteFile(nodesFile, []byte("JP 01\nJP 02\n"), 0o644))

	out, err := execute(t, "generate",
		"--config", path,
		"--log-level", "off",
		"--nodes", nodesFile,
		"--output", filepath.Join(dir, "Config"),
		"--tools", "mihomo")
	require.NoError(t, err)
	assert.Contains(t, out, "2 nodes, regions: Japan Nodes (2)")
}

func TestWatchCommandRejectsBadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), constants.SettingsFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"tools": ["quanx"]}`), 0o644))

	_, err := execute(t, "watch", "--config", path, "--log-level", "off")
	assert.ErrorContains(t, err, `unknown tool "quanx"`)
}

func TestSettingsOverride(t *testing.T) {
	var f settingsFlags
	cmd := &cobra.Command{Use: "x"}
	f.register(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--min-count", "0", "--exclude-isp=false", "-t", "stash"}))

	s := generator.DefaultSettings()
	s.NodesFile = "from-file.txt"
	f.override(cmd)(&s)

	assert.Equal(t, 0, s.MinRegionCount)
	assert.False(t, s.ExcludeISP)
	assert.Equal(t, []string{"stash"}, s.Tools)
	assert.Equal(t, "from-file.txt", s.NodesFile, "unset flags keep the file value")
	assert.Equal(t, constants.OutputDirName, s.OutputDir)
}

func TestPrintClassification(t *testing.T) {
	c, err := region.NewClassifier(region.DefaultTable())
	require.NoError(t, err)

	var out bytes.Buffer
	s := generator.DefaultSettings()
	require.NoError(t, printClassification(&out, c, []string{"HK 01", "HK 02", "家宽 HK", "Mystery"}, s))

	text := out.String()
	lines := strings.Split(text, "\n")
	assert.Regexp(t, `^HK 01\s+Hong Kong\s+region$`, lines[1])
	assert.Regexp(t, `^家宽 HK\s+-\s+excluded$`, lines[3])
	assert.Regexp(t, `^Mystery\s+Other\s+other$`, lines[4])
	assert.Contains(t, text, "  Hong Kong Nodes: 2")
	assert.Contains(t, text, "  Other Nodes: 1")

	out.Reset()
	require.NoError(t, printClassification(&out, c, nil, s))
	assert.Contains(t, out.String(), "placeholder regions")
}

func TestPrintResolution(t *testing.T) {
	c, err := generator.LoadCatalog(generator.DefaultSettings())
	require.NoError(t, err)
	adblock, err := c.Lookup("ADBlock")
	require.NoError(t, err)
	unresolvable := rules.RuleEntry{Key: "Nowhere", Name: "Nowhere", Category: "Missing", RemoteFile: "x", Policy: "Proxy"}

	var out bytes.Buffer
	require.NoError(t, printResolution(&out, c, []rules.RuleEntry{adblock, unresolvable}, constants.ToolMihomo))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Regexp(t, `^ADBlock\s+ADBlock\s+text\s+https://ruleset\.skk\.moe/Clash/domainset/reject\.txt$`, lines[1])
	assert.Regexp(t, `^Nowhere\s+Proxy\s+-\s+-$`, lines[2])
}
