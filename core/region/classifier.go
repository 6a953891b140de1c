package region

import (
	"fmt"

	"github.com/dlclark/regexp2"

	"proxyrules/internal/debuglog"
)

const classifierLogLevel = debuglog.UseGlobal

func regionLog(level debuglog.Level, format string, args ...interface{}) {
	debuglog.Log("Region", level, classifierLogLevel, format, args...)
}

// Outcome is the classification result kind.
type Outcome int

const (
	// Excluded names are dropped from all counts.
	Excluded Outcome = iota
	// Matched names belong to one named region.
	Matched
	// Unmatched names belong to the implicit Other bucket.
	Unmatched
)

func (o Outcome) String() string {
	switch o {
	case Excluded:
		return "excluded"
	case Matched:
		return "region"
	case Unmatched:
		return "other"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what Classify returns for one node name.
type Result struct {
	Outcome Outcome
	Region  string // set only when Outcome == Matched
}

// Name returns the bucket name: the region name, OtherName, or "" when excluded.
func (r Result) Name() string {
	switch r.Outcome {
	case Matched:
		return r.Region
	case Unmatched:
		return OtherName
	default:
		return ""
	}
}

type compiledRule struct {
	rule Rule
	re   *regexp2.Regexp
}

// Classifier maps node names to regions using a Table.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	table   Table
	rules   []compiledRule
	exclude *regexp2.Regexp
}

// compile leaves MatchTimeout unset. Setting it starts regexp2's clock goroutine.
func compile(pattern string) (*regexp2.Regexp, error) {
	return regexp2.Compile(pattern, regexp2.None)
}

// NewClassifier compiles every pattern of table. An invalid pattern or a
// duplicate region name is a setup error.
func NewClassifier(table Table) (*Classifier, error) {
	c := &Classifier{table: table}
	seen := make(map[string]bool, len(table.Rules))
	for _, r := range table.Rules {
		if r.Name == "" || r.Name == OtherName {
			return nil, fmt.Errorf("invalid region name %q", r.Name)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate region %q", r.Name)
		}
		seen[r.Name] = true
		re, err := compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern for region %q: %w", r.Name, err)
		}
		c.rules = append(c.rules, compiledRule{rule: r, re: re})
	}
	if table.Exclude != "" {
		re, err := compile(table.Exclude)
		if err != nil {
			return nil, fmt.Errorf("failed to compile ISP exclusion pattern: %w", err)
		}
		c.exclude = re
	}
	return c, nil
}

// MustNewClassifier is NewClassifier for tables known to be valid.
func MustNewClassifier(table Table) *Classifier {
	c, err := NewClassifier(table)
	if err != nil {
		panic(err)
	}
	return c
}

// Table returns the table the classifier was built from.
func (c *Classifier) Table() Table {
	return c.table
}

func matches(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	if err != nil {
		regionLog(debuglog.LevelWarn, "pattern %q failed on %q: %v", re.String(), s, err)
		return false
	}
	return ok
}

// IsExcluded reports whether name matches the ISP exclusion pattern.
func (c *Classifier) IsExcluded(name string) bool {
	return c.exclude != nil && matches(c.exclude, name)
}

// Classify returns the bucket of one node name. With excludeISP set, a name
// matching the exclusion pattern is Excluded even if it also names a region.
func (c *Classifier) Classify(name string, excludeISP bool) Result {
	if excludeISP && c.IsExcluded(name) {
		return Result{Outcome: Excluded}
	}
	for _, cr := range c.rules {
		if matches(cr.re, name) {
			return Result{Outcome: Matched, Region: cr.rule.Name}
		}
	}
	return Result{Outcome: Unmatched}
}

// HasExcluded reports whether any name matches the ISP exclusion pattern.
func (c *Classifier) HasExcluded(names []string) bool {
	for _, n := range names {
		if c.IsExcluded(n) {
			return true
		}
	}
	return false
}

// FilterPattern returns the filter regex for a region. For a named region
// with excludeISP set the result also rejects ISP names; OtherName yields the
// synthesized Other pattern. Unknown regions yield "".
func (c *Classifier) FilterPattern(name string, excludeISP bool) string {
	if name == OtherName {
		return c.table.OtherPattern(excludeISP)
	}
	r, ok := c.table.Lookup(name)
	if !ok {
		return ""
	}
	if excludeISP && c.table.Exclude != "" {
		return "(?i)^(?=.*(?:" + stripInlineFlags(r.Pattern) + "))(?!.*(?:" + stripInlineFlags(c.table.Exclude) + ")).*$"
	}
	return r.Pattern
}
