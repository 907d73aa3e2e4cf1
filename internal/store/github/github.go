// Package github persists the collection as a single JSON file in a GitHub
// repository through the Contents API.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gogithub "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"coinlog/internal/core"
	"coinlog/internal/store"
)

const defaultTimeout = 10 * time.Second

// Config carries the remote coordinate set. Token, Owner, and Repo are
// required; Path defaults upstream.
type Config struct {
	Token   string
	Owner   string
	Repo    string
	Path    string
	Timeout time.Duration
}

type Client struct {
	gh    *gogithub.Client
	owner string
	repo  string
	path  string
}

// New builds a contents-API client with an authenticated transport and an
// explicit request timeout; an expired deadline surfaces as ErrUnreachable
// like any other transport failure.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
		},
		Timeout: timeout,
	}

	return &Client{
		gh:    gogithub.NewClient(httpClient),
		owner: cfg.Owner,
		repo:  cfg.Repo,
		path:  cfg.Path,
	}
}

// Load fetches the data file. A 404 means the file does not exist yet and
// yields an empty collection; any other API failure is ErrUnreachable, and
// content that does not parse as the collection shape is ErrMalformed.
func (c *Client) Load(ctx context.Context) (core.Collection, error) {
	content, sha, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if sha == "" {
		slog.DebugContext(ctx, "Remote file does not exist yet, starting empty",
			"owner", c.owner, "repo", c.repo, "path", c.path)
		return core.Collection{}, nil
	}

	col, err := core.DecodeCollection([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrMalformed, c.path, err)
	}
	return col, nil
}

// Save is a read-modify-write: the current blob SHA is fetched first and
// sent with the new content so the remote store can reject a write that
// races another session. A rejected write maps to ErrWriteDenied and the
// caller falls back to the local file instead of losing data.
func (c *Client) Save(ctx context.Context, col core.Collection) error {
	data, err := col.EncodeBytes()
	if err != nil {
		return err
	}

	_, sha, err := c.fetch(ctx)
	if err != nil {
		return err
	}

	opts := &gogithub.RepositoryContentFileOptions{
		Message: gogithub.String(commitMessage(col)),
		Content: data,
	}

	if sha == "" {
		_, resp, err := c.gh.Repositories.CreateFile(ctx, c.owner, c.repo, c.path, opts)
		if err != nil {
			return c.writeError(resp, err)
		}
	} else {
		opts.SHA = gogithub.String(sha)
		_, resp, err := c.gh.Repositories.UpdateFile(ctx, c.owner, c.repo, c.path, opts)
		if err != nil {
			return c.writeError(resp, err)
		}
	}

	slog.DebugContext(ctx, "Collection saved to remote",
		"owner", c.owner, "repo", c.repo, "path", c.path,
		"entities", len(col), "records", col.TotalRecords())
	return nil
}

// fetch returns the decoded file content and its blob SHA; a missing file
// is ("", "") with no error.
func (c *Client) fetch(ctx context.Context) (content, sha string, err error) {
	file, _, resp, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, c.path,
		&gogithub.RepositoryContentGetOptions{})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", "", nil
		}
		return "", "", fmt.Errorf("%w: get %s/%s/%s: %v", store.ErrUnreachable, c.owner, c.repo, c.path, err)
	}
	if file == nil {
		// The path resolved to a directory listing.
		return "", "", fmt.Errorf("%w: %s is not a file", store.ErrMalformed, c.path)
	}

	content, err = file.GetContent()
	if err != nil {
		return "", "", fmt.Errorf("%w: decode %s: %v", store.ErrMalformed, c.path, err)
	}
	return content, file.GetSHA(), nil
}

func (c *Client) writeError(resp *gogithub.Response, err error) error {
	if resp != nil && (resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity) {
		return fmt.Errorf("%w: put %s/%s/%s: %v", store.ErrWriteDenied, c.owner, c.repo, c.path, err)
	}
	return fmt.Errorf("%w: put %s/%s/%s: %v", store.ErrUnreachable, c.owner, c.repo, c.path, err)
}

func commitMessage(col core.Collection) string {
	return fmt.Sprintf("Update coin records (%d entities, %d records)", len(col), col.TotalRecords())
}
