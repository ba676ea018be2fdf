package probe

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// classifier maps a stderr pattern for a given binary to a symptom kind.
// Walked in order, first match wins — this is the single table design
// note §9 asks for, replacing scattered stderr string matching at call
// sites with one data structure that a distribution-specific signature
// set can override wholesale via --classifiers.
type classifier struct {
	Binary  string
	Pattern *regexp.Regexp
	Kind    SymptomKind
}

// DefaultClassifiers seeds the (binary, pattern) → symptom table with the
// signatures documented for common rpm/db4 releases. Exact stderr text is
// version-specific (spec.md's Open Question); operators on a distribution
// whose tools emit different text supply --classifiers to replace this
// table without a code change.
var DefaultClassifiers = []classifier{
	{Binary: "rpm", Pattern: regexp.MustCompile(`(?i)cannot open Packages index`), Kind: DBNeedsRecover},
	{Binary: "rpm", Pattern: regexp.MustCompile(`(?i)error\(3\)`), Kind: DBNeedsRecover},
	{Binary: "rpm", Pattern: regexp.MustCompile(`(?i)rpmdb: PANIC`), Kind: DBNeedsRecover},
	{Binary: "rpm", Pattern: regexp.MustCompile(`(?i)DB_RUNRECOVERY`), Kind: DBNeedsRecover},
	{Binary: "rpm", Pattern: regexp.MustCompile(`(?i)BDB0091 (DB_VERIFY_BAD|Metadata page checksum)`), Kind: TableCorrupt},
	{Binary: "rpm", Pattern: regexp.MustCompile(`(?i)no such table|table.*not found`), Kind: TableMissing},
	{Binary: "db_verify", Pattern: regexp.MustCompile(`(?i)DB_VERIFY_BAD`), Kind: TableCorrupt},
	{Binary: "db_verify", Pattern: regexp.MustCompile(`(?i)Invalid argument|corrupt`), Kind: TableCorrupt},
}

// ClassifierSpec is the YAML shape accepted by --classifiers: an ordered
// list of (binary, pattern, kind) triples that replaces DefaultClassifiers
// wholesale, for operators on a distribution whose rpm/db4 build emits
// different stderr text (spec.md's open question about version drift).
type ClassifierSpec struct {
	Binary  string `yaml:"binary"`
	Pattern string `yaml:"pattern"`
	Kind    string `yaml:"kind"`
}

// LoadClassifiers returns DefaultClassifiers when path is empty, otherwise
// compiles the YAML file at path into a classifier table.
func LoadClassifiers(path string) ([]classifier, error) {
	if path == "" {
		return DefaultClassifiers, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading classifiers file: %w", err)
	}
	var specs []ClassifierSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parsing classifiers file %s: %w", path, err)
	}
	table := make([]classifier, 0, len(specs))
	for _, s := range specs {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("classifiers file %s: invalid pattern %q: %w", path, s.Pattern, err)
		}
		table = append(table, classifier{Binary: s.Binary, Pattern: re, Kind: SymptomKind(s.Kind)})
	}
	return table, nil
}

// classify walks the table for binary, returning the first matching kind
// or Unknown with the raw stderr preserved for later diagnosis.
func classify(table []classifier, binary string, stderr []byte) Symptom {
	text := string(stderr)
	for _, c := range table {
		if c.Binary != binary {
			continue
		}
		if c.Pattern.Match(stderr) {
			return Symptom{Kind: c.Kind, Detail: text}
		}
	}
	return unknown(text)
}
