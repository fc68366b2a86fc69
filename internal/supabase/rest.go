package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const restPath = "rest/v1"

// Query modifies a select request
type Query interface {
	apply(v url.Values)
}

type orderQuery struct {
	column    string
	ascending bool
}

func (o orderQuery) apply(v url.Values) {
	dir := "desc"
	if o.ascending {
		dir = "asc"
	}
	v.Add("order", o.column+"."+dir)
}

// Order sorts selected rows by column
func Order(column string, ascending bool) Query {
	return orderQuery{column: column, ascending: ascending}
}

// Filter restricts the rows a request applies to
type Filter struct {
	Column string
	Op     string
	Value  string
}

func (f Filter) apply(v url.Values) {
	v.Add(f.Column, f.Op+"."+f.Value)
}

// Eq matches rows where column equals value
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: "eq", Value: formatValue(value)}
}

// Gt matches rows where column is greater than value
func Gt(column string, value any) Filter {
	return Filter{Column: column, Op: "gt", Value: formatValue(value)}
}

// Gte matches rows where column is greater than or equal to value
func Gte(column string, value any) Filter {
	return Filter{Column: column, Op: "gte", Value: formatValue(value)}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Select reads rows of table into out, which must be a pointer to a slice
func (c *Client) Select(ctx context.Context, table string, out any, queries ...Query) error {
	if c == nil {
		return nil
	}

	q := url.Values{}
	q.Set("select", "*")
	for _, query := range queries {
		query.apply(q)
	}

	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   []string{restPath, table},
		query:  q,
	}, out); err != nil {
		return fmt.Errorf("failed to select %s: %w", table, err)
	}
	return nil
}

// Insert writes row to table and decodes the inserted record into out.
// out may be nil when the caller does not need the record.
func (c *Client) Insert(ctx context.Context, table string, row any, out any) error {
	if c == nil {
		return nil
	}

	body, err := json.Marshal([]any{row})
	if err != nil {
		return fmt.Errorf("failed to encode %s row: %w", table, err)
	}

	prefer := "return=minimal"
	if out != nil {
		prefer = "return=representation"
	}

	var inserted []json.RawMessage
	var target any
	if out != nil {
		target = &inserted
	}

	if err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        []string{restPath, table},
		body:        bytes.NewReader(body),
		contentType: "application/json",
		headers:     map[string]string{"Prefer": prefer},
	}, target); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	if out == nil {
		return nil
	}
	if len(inserted) != 1 {
		return fmt.Errorf("failed to insert into %s: expected 1 row, got %d", table, len(inserted))
	}
	if err := json.Unmarshal(inserted[0], out); err != nil {
		return fmt.Errorf("failed to decode inserted %s row: %w", table, err)
	}
	return nil
}

// Update applies patch to rows of table matching all filters
func (c *Client) Update(ctx context.Context, table string, patch any, filters ...Filter) error {
	if c == nil {
		return nil
	}
	if len(filters) == 0 {
		return ErrMissingFilter
	}

	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode %s patch: %w", table, err)
	}

	q := url.Values{}
	for _, f := range filters {
		f.apply(q)
	}

	if err := c.do(ctx, request{
		method:      http.MethodPatch,
		path:        []string{restPath, table},
		query:       q,
		body:        bytes.NewReader(body),
		contentType: "application/json",
		headers:     map[string]string{"Prefer": "return=minimal"},
	}, nil); err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	return nil
}

// Delete removes rows of table matching all filters
func (c *Client) Delete(ctx context.Context, table string, filters ...Filter) error {
	if c == nil {
		return nil
	}
	if len(filters) == 0 {
		return ErrMissingFilter
	}

	q := url.Values{}
	for _, f := range filters {
		f.apply(q)
	}

	if err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   []string{restPath, table},
		query:  q,
	}, nil); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}
