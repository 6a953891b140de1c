package region

import "proxyrules/internal/debuglog"

// Summary describes one region bucket derived from a node list.
type Summary struct {
	Name    string
	Code    string
	Count   int
	Pattern string // matches the region's names; for Other, the synthesized negative pattern
	Icon    string
	// ExcludePattern is set only for Other: the union of every region pattern
	// (and the ISP pattern when exclusion is on).
	ExcludePattern string
}

// IsOther reports whether s is the catch-all bucket.
func (s Summary) IsOther() bool {
	return s.Name == OtherName
}

// Aggregator counts classified node names per region.
type Aggregator struct {
	classifier *Classifier
}

// NewAggregator returns an Aggregator using c.
func NewAggregator(c *Classifier) *Aggregator {
	return &Aggregator{classifier: c}
}

// Classifier returns the classifier behind a.
func (a *Aggregator) Classifier() *Classifier {
	return a.classifier
}

// Aggregate classifies every name and counts per bucket name, including
// OtherName. Excluded names are not counted.
func (a *Aggregator) Aggregate(names []string, excludeISP bool) map[string]int {
	counts := make(map[string]int)
	for _, n := range names {
		res := a.classifier.Classify(n, excludeISP)
		if res.Outcome == Excluded {
			continue
		}
		counts[res.Name()]++
	}
	regionLog(debuglog.LevelVerbose, "aggregated %d names into %d buckets", len(names), len(counts))
	return counts
}

// Summarize returns summaries in table order for every region whose count is
// at least minCount, followed by an Other summary when Other has any names.
// The Other summary ignores minCount.
func (a *Aggregator) Summarize(names []string, excludeISP bool, minCount int) []Summary {
	counts := a.Aggregate(names, excludeISP)
	table := a.classifier.Table()

	out := make([]Summary, 0, len(table.Rules)+1)
	for _, r := range table.Rules {
		count := counts[r.Name]
		if count < minCount {
			continue
		}
		out = append(out, regionSummary(r, count))
	}
	if other := counts[OtherName]; other > 0 {
		out = append(out, otherSummary(table, other, excludeISP))
	}
	return out
}

// DefaultSummaries returns every table region at count 0 plus Other at count
// 0. It stands in for real data so composed configs keep a stable shape.
func (a *Aggregator) DefaultSummaries(excludeISP bool) []Summary {
	return DefaultSummaries(a.classifier.Table(), excludeISP)
}

// DefaultSummaries is the placeholder summary set for table. excludeISP
// shapes the Other patterns the same way it does in Summarize.
func DefaultSummaries(table Table, excludeISP bool) []Summary {
	out := make([]Summary, 0, len(table.Rules)+1)
	for _, r := range table.Rules {
		out = append(out, regionSummary(r, 0))
	}
	return append(out, otherSummary(table, 0, excludeISP))
}

func regionSummary(r Rule, count int) Summary {
	return Summary{
		Name:    r.Name,
		Code:    r.Code,
		Count:   count,
		Pattern: r.Pattern,
		Icon:    r.Icon,
	}
}

func otherSummary(table Table, count int, excludeISP bool) Summary {
	return Summary{
		Name:           OtherName,
		Code:           "Other",
		Count:          count,
		Pattern:        table.OtherPattern(excludeISP),
		Icon:           OtherIcon,
		ExcludePattern: table.OtherExcludePattern(excludeISP),
	}
}

// Has reports whether summaries contains a bucket named name.
func Has(summaries []Summary, name string) bool {
	for _, s := range summaries {
		if s.Name == name {
			return true
		}
	}
	return false
}

// GroupSuffix is appended to a region name to form its proxy-group name.
const GroupSuffix = " Nodes"

// GroupName returns the proxy-group name of a region, e.g. "Japan Nodes".
func GroupName(name string) string {
	return name + GroupSuffix
}

// GroupNames returns the proxy-group names of summaries in order.
func GroupNames(summaries []Summary) []string {
	names := make([]string, 0, len(summaries))
	for _, s := range summaries {
		names = append(names, GroupName(s.Name))
	}
	return names
}
