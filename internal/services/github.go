package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// GitHubService talks to the GitHub REST API. It backfills the changed file
// list for a pull request when the webhook payload does not carry one.
type GitHubService struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

type pullRequestFile struct {
	Filename string `json:"filename"`
}

func NewGitHubService(token string) *GitHubService {
	return &GitHubService{
		token:      token,
		baseURL:    "https://api.github.com",
		httpClient: &http.Client{},
	}
}

// NewGitHubServiceWithBaseURL creates a service pointed at a custom API root,
// for tests.
func NewGitHubServiceWithBaseURL(token, baseURL string) *GitHubService {
	return &GitHubService{
		token:      token,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// ListPullRequestFiles returns the paths changed by a pull request. repo is
// the full name, e.g. "teamfirst/data-pipeline". Results are paginated by the
// API, so keep fetching until a short page comes back.
func (g *GitHubService) ListPullRequestFiles(ctx context.Context, repo string, number int) ([]string, error) {
	const perPage = 100

	var paths []string
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/pulls/%d/files?per_page=%d&page=%d", g.baseURL, repo, number, perPage, page)

		files, err := g.fetchFilesPage(ctx, url)
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			paths = append(paths, f.Filename)
		}

		if len(files) < perPage {
			return paths, nil
		}
	}
}

func (g *GitHubService) fetchFilesPage(ctx context.Context, url string) ([]pullRequestFile, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pull request files: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to fetch pull request files: status %d, body: %s", resp.StatusCode, string(body))
	}

	var files []pullRequestFile
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("failed to decode pull request files: %w", err)
	}

	return files, nil
}
