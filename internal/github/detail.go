package github

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/models"
)

const ghostLogin = "ghost"

type actorNode struct {
	Login string `json:"login"`
}

func login(a *actorNode) string {
	if a == nil || a.Login == "" {
		return ghostLogin
	}
	return a.Login
}

type commentNode struct {
	Author    *actorNode `json:"author"`
	Body      string     `json:"body"`
	URL       string     `json:"url"`
	CreatedAt time.Time  `json:"createdAt"`
	Replies   struct {
		Nodes []commentNode `json:"nodes"`
	} `json:"replies"`
}

type reviewNode struct {
	Author      *actorNode `json:"author"`
	State       string     `json:"state"`
	Body        string     `json:"body"`
	SubmittedAt time.Time  `json:"submittedAt"`
	Comments    struct {
		Nodes []commentNode `json:"nodes"`
	} `json:"comments"`
}

type itemNode struct {
	URL       string     `json:"url"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	Merged    bool       `json:"merged"`
	Closed    bool       `json:"closed"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Author    *actorNode `json:"author"`
	Comments  struct {
		Nodes []commentNode `json:"nodes"`
	} `json:"comments"`
	Reviews struct {
		Nodes []reviewNode `json:"nodes"`
	} `json:"reviews"`
	Commits struct {
		Nodes []struct {
			Commit struct {
				OID     string `json:"oid"`
				Message string `json:"message"`
			} `json:"commit"`
		} `json:"nodes"`
	} `json:"commits"`
}

var detailQueries = map[models.ContributionType]string{
	models.TypeIssue:       issueQuery,
	models.TypePullRequest: pullRequestQuery,
	models.TypeDiscussion:  discussionQuery,
}

// FetchDetail retrieves the full content of ref: body, comments, reviews
// and, for pull requests, per-commit diff statistics (one extra call per
// commit). Calls are made sequentially.
func (c *Client) FetchDetail(ctx context.Context, ref models.Ref) (models.Detail, error) {
	query, ok := detailQueries[ref.Type]
	if !ok {
		return models.Detail{}, fmt.Errorf("fetch %s: unsupported type %q", ref.Key(), ref.Type)
	}

	data, err := c.exec.Execute(ctx, query, map[string]any{
		"owner":  ref.Owner,
		"repo":   ref.Repo,
		"number": ref.Number,
	})
	if err != nil {
		return models.Detail{}, fmt.Errorf("fetch %s: %w", ref.Key(), err)
	}

	var item itemNode
	if err := decodeItem(data, &item); err != nil {
		return models.Detail{}, fmt.Errorf("fetch %s: %w", ref.Key(), err)
	}

	detail := models.Detail{
		Ref:       ref,
		Title:     item.Title,
		Body:      item.Body,
		State:     item.State,
		Author:    login(item.Author),
		Merged:    item.Merged,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
		Comments:  convertComments(item.Comments.Nodes),
	}
	if ref.Type == models.TypeDiscussion {
		detail.State = "OPEN"
		if item.Closed {
			detail.State = "CLOSED"
		}
	}
	if detail.UpdatedAt.IsZero() {
		detail.UpdatedAt = ref.RemoteUpdatedAt
	}
	detail.Ref.RemoteUpdatedAt = detail.UpdatedAt

	for _, r := range item.Reviews.Nodes {
		detail.Reviews = append(detail.Reviews, models.Review{
			Author:      login(r.Author),
			State:       r.State,
			Body:        r.Body,
			SubmittedAt: r.SubmittedAt,
			Comments:    convertComments(r.Comments.Nodes),
		})
	}

	if ref.Type == models.TypePullRequest {
		for _, n := range item.Commits.Nodes {
			stat, err := c.CommitStats(ctx, ref.Owner, ref.Repo, n.Commit.OID)
			if err != nil {
				return models.Detail{}, fmt.Errorf("fetch %s: %w", ref.Key(), err)
			}
			if stat.Message == "" {
				stat.Message = n.Commit.Message
			}
			detail.Commits = append(detail.Commits, stat)
		}
	}

	c.logger.Debug().
		Str("key", ref.Key().String()).
		Int("comments", len(detail.Comments)).
		Int("reviews", len(detail.Reviews)).
		Int("commits", len(detail.Commits)).
		Msg("fetched detail")
	return detail, nil
}

func decodeItem(data json.RawMessage, item *itemNode) error {
	var wrapper struct {
		Repository *struct {
			Item json.RawMessage `json:"item"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return fmt.Errorf("decode detail: %w", err)
	}
	if wrapper.Repository == nil {
		return fmt.Errorf("%w: repository", perrors.ErrNotFound)
	}
	if len(wrapper.Repository.Item) == 0 || string(wrapper.Repository.Item) == "null" {
		return fmt.Errorf("%w: item", perrors.ErrNotFound)
	}
	if err := json.Unmarshal(wrapper.Repository.Item, item); err != nil {
		return fmt.Errorf("decode detail: %w", err)
	}
	return nil
}

func convertComments(nodes []commentNode) []models.Comment {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]models.Comment, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, models.Comment{
			Author:    login(n.Author),
			Body:      n.Body,
			URL:       n.URL,
			CreatedAt: n.CreatedAt,
			Replies:   convertComments(n.Replies.Nodes),
		})
	}
	return out
}
