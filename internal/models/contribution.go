package models

import (
	"fmt"
	"time"
)

// ContributionType is the kind of platform item a contribution is.
type ContributionType string

const (
	TypeIssue       ContributionType = "issue"
	TypePullRequest ContributionType = "pull_request"
	TypeDiscussion  ContributionType = "discussion"
)

// Valid reports whether t is one of the known contribution types.
func (t ContributionType) Valid() bool {
	switch t {
	case TypeIssue, TypePullRequest, TypeDiscussion:
		return true
	}
	return false
}

// Role is the actor's relationship to a contribution.
type Role string

const (
	RoleAuthor      Role = "author"
	RoleReviewer    Role = "reviewer"
	RoleContributor Role = "contributor"
	RoleCommenter   Role = "commenter"
)

// Roles lists all roles from highest to lowest precedence.
var Roles = []Role{RoleAuthor, RoleReviewer, RoleContributor, RoleCommenter}

// Priority ranks roles when one URL shows up under several facets. Higher wins.
func (r Role) Priority() int {
	switch r {
	case RoleAuthor:
		return 4
	case RoleReviewer:
		return 3
	case RoleContributor:
		return 2
	case RoleCommenter:
		return 1
	}
	return 0
}

// Key identifies a contribution independent of who is looking at it.
type Key struct {
	Owner  string           `json:"owner"`
	Repo   string           `json:"repo"`
	Type   ContributionType `json:"type"`
	Number int              `json:"number"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s#%d", k.Owner, k.Repo, k.Type, k.Number)
}

// Ref is a contribution found during search. Read-only once created.
type Ref struct {
	URL             string           `json:"url" yaml:"url"`
	Type            ContributionType `json:"type" yaml:"type"`
	Owner           string           `json:"owner" yaml:"owner"`
	Repo            string           `json:"repo" yaml:"repo"`
	Number          int              `json:"number" yaml:"number"`
	Title           string           `json:"title,omitempty" yaml:"title,omitempty"`
	RemoteUpdatedAt time.Time        `json:"remote_updated_at" yaml:"remote_updated_at"`
	Role            Role             `json:"role" yaml:"role"`
}

// Key returns the identity of the referenced contribution.
func (r Ref) Key() Key {
	return Key{Owner: r.Owner, Repo: r.Repo, Type: r.Type, Number: r.Number}
}

// Comment is a single comment on an issue, pull request, or discussion.
type Comment struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Replies   []Comment `json:"replies,omitempty"`
}

// Review is a pull request review with its inline comments.
type Review struct {
	Author      string    `json:"author"`
	State       string    `json:"state"`
	Body        string    `json:"body"`
	SubmittedAt time.Time `json:"submitted_at"`
	Comments    []Comment `json:"comments,omitempty"`
}

// CommitStat holds diff statistics for one commit of a pull request.
type CommitStat struct {
	SHA          string   `json:"sha"`
	Message      string   `json:"message"`
	Additions    int      `json:"additions"`
	Deletions    int      `json:"deletions"`
	ChangedFiles []string `json:"changed_files,omitempty"`
}

// Detail is the fully expanded content of one contribution.
type Detail struct {
	Ref       Ref          `json:"ref"`
	Title     string       `json:"title"`
	Body      string       `json:"body"`
	State     string       `json:"state"`
	Author    string       `json:"author"`
	Merged    bool         `json:"merged,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Comments  []Comment    `json:"comments,omitempty"`
	Reviews   []Review     `json:"reviews,omitempty"`
	Commits   []CommitStat `json:"commits,omitempty"`
}

// IsOpenPullRequest reports whether d is a pull request that has not been closed or merged.
func (d Detail) IsOpenPullRequest() bool {
	return d.Ref.Type == TypePullRequest && !d.Merged && (d.State == "OPEN" || d.State == "open")
}
