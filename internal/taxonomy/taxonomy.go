// Package taxonomy owns the canonical label sets (intents, transfer reasons,
// drop-off locations) and reconciles labels invented independently by
// parallel streams into one canonical spelling.
package taxonomy

import (
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"autoanalyze-backend/internal/facts"
)

// Category names one label set.
type Category string

const (
	Intents          Category = "intents"
	TransferReasons  Category = "transferReasons"
	DropOffLocations Category = "dropOffLocations"
)

// Categories lists every category in a stable order.
var Categories = []Category{Intents, TransferReasons, DropOffLocations}

// Mapping maps a provided label to its canonical label, per category.
type Mapping map[Category]map[string]string

// Report summarizes one reconciliation pass.
type Report struct {
	NewLabels         map[Category][]string // canonical labels added by this pass
	ConflictsFound    int                   // distinct provided spellings that differ from their canonical
	ConflictsResolved int                   // session fields rewritten
	Mapping           Mapping
}

// Added returns the number of canonical labels this pass introduced.
func (r Report) Added() int {
	n := 0
	for _, labels := range r.NewLabels {
		n += len(labels)
	}
	return n
}

// Taxonomy is a set of canonical labels that only grows.
type Taxonomy struct {
	mu        sync.RWMutex
	canonical map[Category][]string
	byKey     map[Category]map[string]string // normalized key -> canonical
	mapped    map[Category]map[string]string // provided -> canonical, provided != canonical
}

// New returns an empty taxonomy.
func New() *Taxonomy {
	t := &Taxonomy{
		canonical: make(map[Category][]string),
		byKey:     make(map[Category]map[string]string),
		mapped:    make(map[Category]map[string]string),
	}
	for _, c := range Categories {
		t.byKey[c] = make(map[string]string)
		t.mapped[c] = make(map[string]string)
	}
	return t
}

// Snapshot returns a copy of the canonical labels.
func (t *Taxonomy) Snapshot() facts.Labels {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return facts.Labels{
		Intents:          append([]string(nil), t.canonical[Intents]...),
		TransferReasons:  append([]string(nil), t.canonical[TransferReasons]...),
		DropOffLocations: append([]string(nil), t.canonical[DropOffLocations]...),
	}
}

// Counts returns the number of canonical labels per category.
func (t *Taxonomy) Counts() map[Category]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		out[c] = len(t.canonical[c])
	}
	return out
}

// Contains reports whether label is a canonical member of c.
func (t *Taxonomy) Contains(c Category, label string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, l := range t.canonical[c] {
		if l == label {
			return true
		}
	}
	return false
}

// MappingCount returns how many provided spellings have been remapped so far.
func (t *Taxonomy) MappingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, m := range t.mapped {
		n += len(m)
	}
	return n
}

// Resolve decides the canonical label for every provided label of c, adding
// genuinely new labels to the taxonomy. Labels are resolved in order, so the
// first spelling seen wins when two new spellings collide.
func (t *Taxonomy) Resolve(c Category, labels []string) (map[string]string, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]string, len(labels))
	var added []string
	for _, raw := range labels {
		label := Clean(raw)
		if label == "" {
			continue
		}
		if _, done := out[label]; done {
			continue
		}
		key := Key(label)
		canonical, ok := t.byKey[c][key]
		if !ok {
			canonical, ok = t.nearest(c, key)
		}
		if !ok {
			canonical = label
			t.canonical[c] = append(t.canonical[c], label)
			added = append(added, label)
		}
		t.byKey[c][key] = canonical
		out[label] = canonical
		if label != canonical {
			t.mapped[c][label] = canonical
		}
	}
	return out, added
}

// nearest finds a canonical label within edit distance of key. Callers hold t.mu.
func (t *Taxonomy) nearest(c Category, key string) (string, bool) {
	best, bestDist := "", -1
	for _, candidate := range t.canonical[c] {
		ck := Key(candidate)
		limit := maxDistance(key, ck)
		if limit == 0 {
			continue
		}
		d := levenshtein.ComputeDistance(key, ck)
		if d <= limit && (bestDist < 0 || d < bestDist) {
			best, bestDist = candidate, d
		}
	}
	return best, bestDist >= 0
}

func maxDistance(a, b string) int {
	n := utf8.RuneCountInString(a)
	if m := utf8.RuneCountInString(b); m < n {
		n = m
	}
	switch {
	case n >= 16:
		return 2
	case n >= 8:
		return 1
	default:
		return 0
	}
}

// Reconcile resolves every label carried by items and rewrites the items in
// place so they reference canonical labels only.
func (t *Taxonomy) Reconcile(items []facts.SessionWithFacts) Report {
	report := Report{
		NewLabels: make(map[Category][]string),
		Mapping:   make(Mapping),
	}
	for _, c := range Categories {
		labels := make([]string, 0, len(items))
		for i := range items {
			labels = append(labels, *field(&items[i].Facts, c))
		}
		resolved, added := t.Resolve(c, labels)
		if len(added) > 0 {
			report.NewLabels[c] = added
		}
		report.Mapping[c] = resolved
		for provided, canonical := range resolved {
			if provided != canonical {
				report.ConflictsFound++
			}
		}
	}
	report.ConflictsResolved = Apply(report.Mapping, items)
	return report
}

// Apply rewrites labels in items according to m and returns how many fields changed.
// Empty-like labels are cleared.
func Apply(m Mapping, items []facts.SessionWithFacts) int {
	rewritten := 0
	for i := range items {
		for _, c := range Categories {
			f := field(&items[i].Facts, c)
			cleaned := Clean(*f)
			next := cleaned
			if canonical, ok := m[c][cleaned]; ok {
				next = canonical
			}
			if next != *f {
				if cleaned != "" && next != cleaned {
					rewritten++
				}
				*f = next
			}
		}
	}
	return rewritten
}

// Orphans returns labels in items that are not canonical members. Empty labels are ignored.
func (t *Taxonomy) Orphans(items []facts.SessionWithFacts) []string {
	var out []string
	for i := range items {
		for _, c := range Categories {
			if v := *field(&items[i].Facts, c); v != "" && !t.Contains(c, v) {
				out = append(out, string(c)+":"+v)
			}
		}
	}
	sort.Strings(out)
	return out
}

func field(f *facts.Facts, c Category) *string {
	switch c {
	case Intents:
		return &f.GeneralIntent
	case TransferReasons:
		return &f.TransferReason
	default:
		return &f.DropOffLocation
	}
}

var emptyLike = map[string]struct{}{
	"n a": {}, "na": {}, "none": {}, "null": {}, "nil": {}, "not applicable": {},
}

// Clean trims a label and maps placeholder values ("N/A", "none") and
// labels without letters or digits to "".
func Clean(label string) string {
	label = strings.Join(strings.Fields(label), " ")
	if label == "" {
		return ""
	}
	key := Key(label)
	if key == "" {
		return ""
	}
	if _, ok := emptyLike[key]; ok {
		return ""
	}
	return label
}

// Key is the comparison form of a label: lower case, separators as spaces,
// punctuation removed, whitespace collapsed.
func Key(label string) string {
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range strings.ToLower(label) {
		switch {
		case r == '_' || r == '-' || r == '/' || unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
