// Package fingerprint implements the optional OS-fingerprint tally of
// spec.md §4.7 (C8): a database mapping each known username to the set of
// OS labels it has been observed under, and a report of which label occurs
// most often across every username probed in this run.
//
// Grounded on Fingerprint.cpp's FingerprintDb/OSs stream operators and
// Fingerprinting::getReport: a semicolon-joined flat file loaded once and
// read for the rest of the process's life, and a sorted count report
// printed at shutdown. The original's iostream operator>> becomes a plain
// Load function; its map<string,set<string>> becomes a Go
// map[string]map[string]struct{}, the idiomatic set substitute.
package fingerprint

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strings"
)

// Database maps each known username to its observed OS label set.
type Database map[string]map[string]struct{}

// Load parses path: one line per known username, first `;`-separated
// token is the username, the rest are OS labels (spec.md §4.7). Empty
// labels are kept as empty strings rather than dropped, matching the
// original's raw token split.
func Load(path string) (Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (Database, error) {
	db := Database{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		tokens := strings.Split(line, ";")
		user := tokens[0]
		labels := tokens[1:]
		set := make(map[string]struct{}, len(labels))
		for _, l := range labels {
			set[l] = struct{}{}
		}
		db[user] = set
	}
	return db, sc.Err()
}

// Tally accumulates OS-label occurrence counts across every username
// inserted during one run, the in-memory counterpart to the original's
// Fingerprinting::fingerprint map<string,int>.
type Tally struct {
	db     Database
	counts map[string]int
}

// NewTally creates a tally backed by db (the known-user → OS-label-set
// database); db may be nil, in which case Insert never finds a match.
func NewTally(db Database) *Tally {
	return &Tally{db: db, counts: map[string]int{}}
}

// Insert increments every OS label recorded for user in the backing
// database. Insert is a no-op for usernames the database does not know
// about (matching insertOccurence's silent skip on a missed lookup).
func (t *Tally) Insert(user string) {
	labels, ok := t.db[user]
	if !ok {
		return
	}
	for l := range labels {
		t.counts[l]++
	}
}

// Stat is one line of a sorted fingerprint report.
type Stat struct {
	Label string
	Count int
}

// Report returns the accumulated counts sorted descending by frequency,
// ties broken by label ascending for stable output, per spec.md §4.7.
func (t *Tally) Report() []Stat {
	stats := make([]Stat, 0, len(t.counts))
	for label, count := range t.counts {
		stats = append(stats, Stat{Label: label, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Label < stats[j].Label
	})
	return stats
}
