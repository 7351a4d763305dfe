package cortexapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/user/cortexdash/internal/types"
)

// pageSize is the page length used when loading a whole project.
const pageSize = 500

// ListProjects returns every memory database the backend has discovered.
func (c *Client) ListProjects(ctx context.Context) ([]types.Project, error) {
	var projects []types.Project
	if err := c.getJSON(ctx, "/api/projects", nil, &projects); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ListMemories returns one page of a project's memories.
func (c *Client) ListMemories(ctx context.Context, project string, f Filter) ([]types.Record, error) {
	var records []types.Record
	if err := c.getJSON(ctx, "/api/memories", f.query(project), &records); err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return records, nil
}

// LoadRecords pages through every memory of project in sort order.
func (c *Client) LoadRecords(ctx context.Context, project string, sort types.Sort) ([]types.Record, error) {
	var all []types.Record
	for offset := 0; ; offset += pageSize {
		page, err := c.ListMemories(ctx, project, Filter{Sort: sort, Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// GetRecord fetches a single memory.
func (c *Client) GetRecord(ctx context.Context, project string, id types.RecordID) (*types.Record, error) {
	var r types.Record
	path := "/api/memories/" + url.PathEscape(string(id))
	if err := c.getJSON(ctx, path, projectQuery(project), &r); err != nil {
		return nil, fmt.Errorf("get memory %s: %w", id, err)
	}
	return &r, nil
}

// UpdateRecord writes r back. The returned record is the backend's view;
// the live channel remains the authority for the local copy.
func (c *Client) UpdateRecord(ctx context.Context, project string, r types.Record) (*types.Record, error) {
	path := "/api/memories/" + url.PathEscape(string(r.ID))
	req, err := c.newRequest(ctx, http.MethodPut, path, projectQuery(project), r)
	if err != nil {
		return nil, err
	}
	var out types.Record
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("update memory %s: %w", r.ID, err)
	}
	if out.ID == "" {
		return nil, nil
	}
	return &out, nil
}

// DeleteRecord removes a memory.
func (c *Client) DeleteRecord(ctx context.Context, project string, id types.RecordID) error {
	path := "/api/memories/" + url.PathEscape(string(id))
	req, err := c.newRequest(ctx, http.MethodDelete, path, projectQuery(project), nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	return nil
}

// Stats returns the project's memory summary.
func (c *Client) Stats(ctx context.Context, project string) (*Stats, error) {
	var s Stats
	if err := c.getJSON(ctx, "/api/memories/stats/summary", projectQuery(project), &s); err != nil {
		return nil, fmt.Errorf("memory stats: %w", err)
	}
	return &s, nil
}

// Search runs the backend's full-text search.
func (c *Client) Search(ctx context.Context, project, q string, limit int) ([]types.Record, error) {
	query := projectQuery(project)
	query.Set("q", q)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var records []types.Record
	if err := c.getJSON(ctx, "/api/search", query, &records); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return records, nil
}

// Tags lists every tag in use with its count, most used first.
func (c *Client) Tags(ctx context.Context, project string) ([]TagCount, error) {
	var tags []TagCount
	if err := c.getJSON(ctx, "/api/tags", projectQuery(project), &tags); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// Types returns how many memories the project holds of each type.
func (c *Client) Types(ctx context.Context, project string) (map[string]int, error) {
	var dist map[string]int
	if err := c.getJSON(ctx, "/api/types", projectQuery(project), &dist); err != nil {
		return nil, fmt.Errorf("list types: %w", err)
	}
	return dist, nil
}

func projectQuery(project string) url.Values {
	return url.Values{"project": {project}}
}
