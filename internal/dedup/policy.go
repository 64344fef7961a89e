// Package dedup provides name validation, duplicate grouping and merge for
// graph entities. Grouping and validation are pure; only Merge touches the
// store.
package dedup

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the configurable rule set for name validation. Loaded from YAML
// so operators can tune it without a rebuild.
type Policy struct {
	// MinNameLength rejects names shorter than this many characters.
	MinNameLength int `yaml:"min_name_length"`

	// RejectJobTitles rejects names that consist entirely of job-title words.
	RejectJobTitles bool `yaml:"reject_job_titles"`

	// RejectSingleToken rejects single-word names. Off by default: plenty of
	// legitimate organizations are one word.
	RejectSingleToken bool `yaml:"reject_single_token"`

	// JobTitleWords extends the built-in job-title word list.
	JobTitleWords []string `yaml:"job_title_words"`
}

// DefaultPolicy returns the rule set used when no policy file is configured.
func DefaultPolicy() *Policy {
	return &Policy{
		MinNameLength:     3,
		RejectJobTitles:   true,
		RejectSingleToken: false,
	}
}

// LoadPolicy reads a Policy from a YAML file. Missing keys keep their
// default values.
func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dedup: failed to read policy file: %w", err)
	}
	p := DefaultPolicy()
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("dedup: failed to parse policy file: %w", err)
	}
	if p.MinNameLength < 1 {
		p.MinNameLength = 1
	}
	return p, nil
}

// builtinJobTitles are always considered job-title words.
var builtinJobTitles = map[string]bool{
	"ceo": true, "cto": true, "cfo": true, "coo": true, "cmo": true,
	"vp": true, "evp": true, "svp": true,
	"founder": true, "cofounder": true, "co-founder": true,
	"president": true, "chairman": true, "chief": true,
	"executive": true, "officer": true, "director": true, "manager": true,
	"partner": true, "principal": true, "associate": true, "analyst": true,
	"engineer": true, "developer": true, "designer": true,
	"advisor": true, "consultant": true, "investor": true, "intern": true,
	"head": true, "lead": true, "of": true, "and": true,
}

// isJobTitleWord reports whether the lowercase token is a job-title word
// under this policy.
func (p *Policy) isJobTitleWord(token string) bool {
	if builtinJobTitles[token] {
		return true
	}
	for _, w := range p.JobTitleWords {
		if token == w {
			return true
		}
	}
	return false
}
