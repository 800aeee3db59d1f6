package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/p-blackswan/perfreview/internal/models"
)

// Counts is the tally of accepted analyses.
type Counts struct {
	Total      int                                             `json:"total" yaml:"total"`
	ByRole     map[models.Role]int                             `json:"by_role" yaml:"by_role"`
	ByType     map[models.ContributionType]int                 `json:"by_type" yaml:"by_type"`
	ByRoleType map[models.Role]map[models.ContributionType]int `json:"by_role_type" yaml:"by_role_type"`
}

// Tally counts records by role and contribution type. The result does not
// depend on record order.
func Tally(records []models.Record) Counts {
	c := Counts{
		ByRole:     make(map[models.Role]int),
		ByType:     make(map[models.ContributionType]int),
		ByRoleType: make(map[models.Role]map[models.ContributionType]int),
	}
	for _, r := range records {
		role := r.Role
		if role == "" {
			role = r.Ref.Role
		}
		typ := r.Ref.Type

		c.Total++
		c.ByRole[role]++
		c.ByType[typ]++
		if c.ByRoleType[role] == nil {
			c.ByRoleType[role] = make(map[models.ContributionType]int)
		}
		c.ByRoleType[role][typ]++
	}
	return c
}

// Get returns the count for one role and type.
func (c Counts) Get(role models.Role, typ models.ContributionType) int {
	return c.ByRoleType[role][typ]
}

// String renders the counts as a stable one-line description, e.g.
// "5 contributions: author 3 (issue 1, pull_request 2); reviewer 2 (pull_request 2)".
func (c Counts) String() string {
	if c.Total == 0 {
		return "0 contributions"
	}
	var parts []string
	for _, role := range c.roles() {
		byType := c.ByRoleType[role]
		types := make([]string, 0, len(byType))
		for typ := range byType {
			types = append(types, string(typ))
		}
		sort.Strings(types)
		detail := make([]string, 0, len(types))
		for _, typ := range types {
			detail = append(detail, fmt.Sprintf("%s %d", typ, byType[models.ContributionType(typ)]))
		}
		parts = append(parts, fmt.Sprintf("%s %d (%s)", role, c.ByRole[role], strings.Join(detail, ", ")))
	}
	return fmt.Sprintf("%d contributions: %s", c.Total, strings.Join(parts, "; "))
}

// roles returns the present roles in precedence order, unknown roles last.
func (c Counts) roles() []models.Role {
	var out []models.Role
	seen := make(map[models.Role]bool)
	for _, r := range models.Roles {
		if c.ByRole[r] > 0 {
			out = append(out, r)
			seen[r] = true
		}
	}
	var extra []string
	for r := range c.ByRole {
		if !seen[r] {
			extra = append(extra, string(r))
		}
	}
	sort.Strings(extra)
	for _, r := range extra {
		out = append(out, models.Role(r))
	}
	return out
}
