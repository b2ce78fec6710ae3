// Package teams maps reviewers to team affiliations and classifies reviews
// as cross-team. Affiliations come from a YAML file mapping team names to
// member logins; team names double as the sig-* labels used on PRs.
package teams

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Directory resolves a login to its team. Lookups are read-only after Load,
// so the map is safe to share across goroutines.
type Directory struct {
	byMember map[string]string
}

// Load reads the team membership file. A login appearing under several teams
// keeps the first team in YAML document order.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read teams file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a Directory from raw YAML. The teams mapping is walked as a
// yaml.Node so document order decides which team wins a duplicated login;
// decoding into a Go map would lose it.
func Parse(raw []byte) (*Directory, error) {
	var f struct {
		Teams yaml.Node `yaml:"teams"`
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse teams file: %w", err)
	}
	d := &Directory{byMember: make(map[string]string)}
	if f.Teams.Kind == 0 || f.Teams.Tag == "!!null" {
		return d, nil
	}
	if f.Teams.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse teams file: teams must be a mapping of team to members")
	}
	for i := 0; i+1 < len(f.Teams.Content); i += 2 {
		team := f.Teams.Content[i].Value
		var members []string
		if err := f.Teams.Content[i+1].Decode(&members); err != nil {
			return nil, fmt.Errorf("parse teams file: team %s: %w", team, err)
		}
		for _, m := range members {
			if _, ok := d.byMember[m]; !ok {
				d.byMember[m] = team
			}
		}
	}
	return d, nil
}

// Empty returns a Directory with no members; every classification from it is
// the unknown tri-state.
func Empty() *Directory {
	return &Directory{byMember: map[string]string{}}
}

// TeamOf returns the reviewer's team, or "" when unknown.
func (d *Directory) TeamOf(login string) string {
	return d.byMember[login]
}

// Classification is the tri-state cross-team verdict stored alongside a
// review event. Nil pointers persist as NULL: unknown affiliation is a real
// answer, distinct from a same-team review.
type Classification struct {
	ReviewerTeam *string
	PRSigLabel   *string
	IsCrossTeam  *bool
}

// SigLabel picks the PR's team label from its label names: the first one
// with the sig- prefix, or "" when the PR carries none.
func SigLabel(labels []string) string {
	for _, l := range labels {
		if strings.HasPrefix(l, "sig-") {
			return l
		}
	}
	return ""
}

// Classify derives the cross-team verdict for one review. IsCrossTeam stays
// nil unless both the reviewer's team and the PR's sig label are known.
func (d *Directory) Classify(reviewer string, labels []string) Classification {
	var c Classification
	if team := d.TeamOf(reviewer); team != "" {
		c.ReviewerTeam = &team
	}
	if label := SigLabel(labels); label != "" {
		c.PRSigLabel = &label
	}
	if c.ReviewerTeam != nil && c.PRSigLabel != nil {
		cross := *c.ReviewerTeam != *c.PRSigLabel
		c.IsCrossTeam = &cross
	}
	return c
}
