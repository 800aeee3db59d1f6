// Package locator turns contribution URLs into owner/repo/number identities.
package locator

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/models"
)

// DefaultHost is the web host contribution URLs are expected on.
const DefaultHost = "github.com"

// /{owner}/{repo}/{issues|pull|discussions}/{n}, optionally followed by sub-pages like /files.
var pathPattern = regexp.MustCompile(`^/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)/(issues|pull|discussions)/(\d+)(?:/.*)?$`)

var segmentTypes = map[string]models.ContributionType{
	"issues":      models.TypeIssue,
	"pull":        models.TypePullRequest,
	"discussions": models.TypeDiscussion,
}

// Location is the parsed identity of a contribution URL.
type Location struct {
	Owner  string                  `json:"owner"`
	Repo   string                  `json:"repo"`
	Number int                     `json:"number"`
	Type   models.ContributionType `json:"type"`
}

// Key converts the location into a cache identity.
func (l Location) Key() models.Key {
	return models.Key{Owner: l.Owner, Repo: l.Repo, Type: l.Type, Number: l.Number}
}

// Parser recognizes contribution URLs on a single web host.
type Parser struct {
	host string
}

// NewParser returns a parser for host. An empty host means DefaultHost.
func NewParser(host string) *Parser {
	if host == "" {
		host = DefaultHost
	}
	return &Parser{host: strings.ToLower(host)}
}

// Host returns the web host this parser accepts.
func (p *Parser) Host() string { return p.host }

// Parse extracts owner, repo, number, and type from raw.
// Any other shape fails with ErrMalformedReference.
func (p *Parser) Parse(raw string) (Location, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s: %v", perrors.ErrMalformedReference, raw, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return Location{}, fmt.Errorf("%w: %s: unsupported scheme", perrors.ErrMalformedReference, raw)
	}
	if !strings.EqualFold(u.Hostname(), p.host) {
		return Location{}, fmt.Errorf("%w: %s: host is not %s", perrors.ErrMalformedReference, raw, p.host)
	}

	m := pathPattern.FindStringSubmatch(strings.TrimSuffix(u.Path, "/"))
	if m == nil {
		return Location{}, fmt.Errorf("%w: %s", perrors.ErrMalformedReference, raw)
	}
	num, err := strconv.Atoi(m[4])
	if err != nil || num <= 0 {
		return Location{}, fmt.Errorf("%w: %s: bad number", perrors.ErrMalformedReference, raw)
	}

	return Location{
		Owner:  m[1],
		Repo:   m[2],
		Number: num,
		Type:   segmentTypes[m[3]],
	}, nil
}

// SameHost reports whether raw points at the parser's host. Used to restrict
// referenced links to the platform.
func (p *Parser) SameHost(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), p.host)
}

var defaultParser = NewParser(DefaultHost)

// Parse parses raw against DefaultHost.
func Parse(raw string) (Location, error) {
	return defaultParser.Parse(raw)
}
