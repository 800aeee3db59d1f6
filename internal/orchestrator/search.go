package orchestrator

import (
	"fmt"
	"strings"
	"time"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/github"
	"github.com/p-blackswan/perfreview/internal/models"
)

const dateLayout = "2006-01-02"

// DateRange is the inclusive review period.
type DateRange struct {
	Since time.Time `json:"since" yaml:"since"`
	Until time.Time `json:"until" yaml:"until"`
}

// String renders the range in platform search syntax, e.g. "2024-01-01..2024-03-31".
func (r DateRange) String() string {
	return r.Since.Format(dateLayout) + ".." + r.Until.Format(dateLayout)
}

// Validate rejects empty and inverted ranges.
func (r DateRange) Validate() error {
	if r.Since.IsZero() || r.Until.IsZero() {
		return fmt.Errorf("date range needs both since and until")
	}
	if r.Until.Before(r.Since) {
		return fmt.Errorf("date range ends (%s) before it starts (%s)", r.Until.Format(dateLayout), r.Since.Format(dateLayout))
	}
	return nil
}

// Facet is one way an actor can be involved in a contribution.
type Facet struct {
	Name  string
	Role  models.Role
	Kinds []github.SearchKind
	query func(org, actor string, r DateRange) string
}

// Query builds the facet's platform search string.
func (f Facet) Query(org, actor string, r DateRange) string {
	return f.query(org, actor, r)
}

// Facets returns the searches a run performs, highest role first.
func Facets() []Facet {
	both := []github.SearchKind{github.SearchIssues, github.SearchDiscussions}
	issues := []github.SearchKind{github.SearchIssues}
	return []Facet{
		{
			Name: "authored", Role: models.RoleAuthor, Kinds: both,
			query: func(org, actor string, r DateRange) string {
				return fmt.Sprintf("org:%s author:%s created:%s", org, actor, r)
			},
		},
		{
			Name: "reviewed", Role: models.RoleReviewer, Kinds: issues,
			query: func(org, actor string, r DateRange) string {
				return fmt.Sprintf("org:%s is:pr reviewed-by:%s -author:%s updated:%s", org, actor, actor, r)
			},
		},
		{
			Name: "assigned", Role: models.RoleContributor, Kinds: issues,
			query: func(org, actor string, r DateRange) string {
				return fmt.Sprintf("org:%s assignee:%s -author:%s updated:%s", org, actor, actor, r)
			},
		},
		{
			Name: "commented", Role: models.RoleCommenter, Kinds: both,
			query: func(org, actor string, r DateRange) string {
				return fmt.Sprintf("org:%s commenter:%s -author:%s updated:%s", org, actor, actor, r)
			},
		},
	}
}

// Merge deduplicates refs by URL. When a URL appears under several roles
// the highest-priority role wins; the first occurrence fixes the position.
func Merge(refs []models.Ref) []models.Ref {
	index := make(map[string]int, len(refs))
	out := make([]models.Ref, 0, len(refs))
	for _, r := range refs {
		i, seen := index[r.URL]
		if !seen {
			index[r.URL] = len(out)
			out = append(out, r)
			continue
		}
		if r.Role.Priority() > out[i].Role.Priority() {
			out[i].Role = r.Role
		}
		if r.RemoteUpdatedAt.After(out[i].RemoteUpdatedAt) {
			out[i].RemoteUpdatedAt = r.RemoteUpdatedAt
		}
	}
	return out
}

// locate checks that a search result's URL parses to the identity the
// platform reported for it.
func (o *Orchestrator) locate(ref models.Ref) error {
	loc, err := o.parser.Parse(ref.URL)
	if err != nil {
		return err
	}
	if !strings.EqualFold(loc.Owner, ref.Owner) || !strings.EqualFold(loc.Repo, ref.Repo) ||
		loc.Number != ref.Number || loc.Type != ref.Type {
		return fmt.Errorf("%w: %s resolves to %s, search reported %s",
			perrors.ErrMalformedReference, ref.URL, loc.Key(), ref.Key())
	}
	return nil
}
