package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/muhammadmuzzammil1998/jsonc"
	"go.uber.org/multierr"

	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

// Settings drive one generation run. They are read from a JSONC file; fields
// the file leaves out keep their defaults.
type Settings struct {
	// NodesFile is the subscription node list. Empty means no nodes, which
	// yields the placeholder region set.
	NodesFile string `json:"nodes_file"`
	// OutputDir receives one subdirectory per tool.
	OutputDir string `json:"output_dir"`
	// Tools selects the renderers: mihomo, stash, loon, surge.
	Tools []string `json:"tools"`
	// MinRegionCount is the minimum node count of a region group.
	MinRegionCount int `json:"min_region_count"`
	// ExcludeISP drops home broadband and landing nodes before counting.
	ExcludeISP bool `json:"exclude_isp"`
	// BaseDir and RulesDir override the embedded base settings and rule
	// catalog.
	BaseDir  string `json:"base_dir"`
	RulesDir string `json:"rules_dir"`
	// ScriptThreshold is the region threshold fixed into the Mihomo scripts.
	// Zero means MinRegionCount.
	ScriptThreshold int `json:"script_threshold"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		OutputDir:      constants.OutputDirName,
		Tools:          []string{"mihomo", "stash", "loon", "surge"},
		MinRegionCount: constants.DefaultMinRegionCount,
		ExcludeISP:     true,
	}
}

var toolNames = map[string]string{
	"mihomo": constants.ToolMihomo,
	"clash":  constants.ToolMihomo,
	"stash":  constants.ToolStash,
	"loon":   constants.ToolLoon,
	"surge":  constants.ToolSurge,
}

// ParseTool maps a settings tool name to its canonical name. Matching is case
// insensitive.
func ParseTool(name string) (string, error) {
	tool, ok := toolNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return tool, nil
}

// ToolList returns the canonical tool names in settings order, without
// duplicates.
func (s Settings) ToolList() ([]string, error) {
	seen := make(map[string]bool, len(s.Tools))
	var out []string
	var errs error
	for _, name := range s.Tools {
		tool, err := ParseTool(name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !seen[tool] {
			seen[tool] = true
			out = append(out, tool)
		}
	}
	return out, errs
}

// Threshold returns the region threshold fixed into scripts.
func (s Settings) Threshold() int {
	if s.ScriptThreshold > 0 {
		return s.ScriptThreshold
	}
	return s.MinRegionCount
}

// Validate reports every problem with s at once.
func (s Settings) Validate() error {
	var errs error
	if strings.TrimSpace(s.OutputDir) == "" {
		errs = multierr.Append(errs, errors.New("output_dir is empty"))
	}
	if s.MinRegionCount < 0 {
		errs = multierr.Append(errs, fmt.Errorf("min_region_count must not be negative, got %d", s.MinRegionCount))
	}
	if s.ScriptThreshold < 0 {
		errs = multierr.Append(errs, fmt.Errorf("script_threshold must not be negative, got %d", s.ScriptThreshold))
	}
	tools, err := s.ToolList()
	errs = multierr.Append(errs, err)
	if err == nil && len(tools) == 0 {
		errs = multierr.Append(errs, errors.New("no tools selected"))
	}
	if errs != nil {
		return fmt.Errorf("invalid settings: %w", errs)
	}
	return nil
}

// ParseSettings decodes JSONC settings on top of the defaults. The result is
// not validated; callers apply their overrides first and then call Validate.
func ParseSettings(data []byte) (Settings, error) {
	s := DefaultSettings()
	cleanData := jsonc.ToJSON(data)
	if err := json.Unmarshal(cleanData, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings: %w", err)
	}
	return s, nil
}

// LoadSettings reads settings from path. A missing file yields the defaults.
// Like ParseSettings it does not validate.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		generatorLog(debuglog.LevelInfo, "%s not found, using default settings", path)
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	s, err := ParseSettings(data)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	generatorLog(debuglog.LevelVerbose, "loaded settings from %s", path)
	return s, nil
}
