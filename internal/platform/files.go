package platform

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

type link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type fileList struct {
	Href  string `json:"href"`
	Items []File `json:"items"`
	Links []link `json:"links"`
}

func (l fileList) next() string {
	for _, ln := range l.Links {
		if ln.Rel == "next" {
			return ln.Href
		}
	}
	return ""
}

// QueryFiles lists every file matching q, following pagination links.
func (c *Client) QueryFiles(ctx context.Context, q FileQuery) ([]File, error) {
	params := url.Values{}
	if q.Parent != "" {
		params.Set("parent", q.Parent)
	} else if q.Project != "" {
		params.Set("project", q.Project)
	}
	for _, n := range q.Names {
		params.Add("name", n)
	}
	params.Set("fields", "_all")
	params.Set("offset", "0")
	params.Set("limit", strconv.Itoa(c.pages.PageSize))

	var files []File
	path := "/files"
	for page := 0; page < c.pages.MaxPages; page++ {
		var list fileList
		if err := c.doJSON(ctx, http.MethodGet, path, params, nil, &list); err != nil {
			return nil, err
		}
		files = append(files, list.Items...)
		next := list.next()
		if next == "" || len(list.Items) == 0 {
			return files, nil
		}
		// next links carry their own query string
		path, params = next, nil
	}
	c.log.Warn().Str("query", describeQuery(q)).Int("max_pages", c.pages.MaxPages).Msg("file listing truncated")
	return files, nil
}

// FindFile resolves q to exactly one file. It never picks the first of
// several matches: zero is a NotFoundError, more than one an AmbiguousError.
func (c *Client) FindFile(ctx context.Context, q FileQuery) (*File, error) {
	files, err := c.QueryFiles(ctx, q)
	if err != nil {
		return nil, err
	}
	return exactlyOne(files, q)
}

func exactlyOne(files []File, q FileQuery) (*File, error) {
	switch len(files) {
	case 0:
		return nil, &NotFoundError{Kind: "file", Query: describeQuery(q)}
	case 1:
		f := files[0]
		return &f, nil
	default:
		ids := make([]string, 0, len(files))
		for _, f := range files {
			ids = append(ids, f.ID)
		}
		return nil, &AmbiguousError{Kind: "file", Query: describeQuery(q), IDs: ids}
	}
}

func (c *Client) GetFile(ctx context.Context, id string) (*File, error) {
	var f File
	if err := c.doJSON(ctx, http.MethodGet, "/files/"+url.PathEscape(id), nil, nil, &f); err != nil {
		return nil, notFound(err, "file", id)
	}
	return &f, nil
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/files/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return notFound(err, "file", id)
	}
	return nil
}
