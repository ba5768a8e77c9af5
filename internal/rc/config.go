package rc

import (
	"context"
	"sort"
	"strings"
)

// UnsupportedPrefixes are backends that make no sense as a standalone
// bookmark (local disk, in-memory, or wrappers around another remote).
var UnsupportedPrefixes = []string{
	"local", "memory", "alias", "cache", "union", "combine",
	"chunker", "hasher", "compress", "crypt",
}

// Supported reports whether a provider prefix is offered to users.
func Supported(prefix string) bool {
	for _, p := range UnsupportedPrefixes {
		if strings.EqualFold(prefix, p) {
			return false
		}
	}
	return true
}

// ProviderOption is one parameter in a provider's schema. Only the fields
// the CLI and tray show are decoded.
type ProviderOption struct {
	Name       string `json:"Name"`
	Help       string `json:"Help"`
	Required   bool   `json:"Required"`
	Advanced   bool   `json:"Advanced"`
	IsPassword bool   `json:"IsPassword"`
	Default    any    `json:"Default"`
}

// Provider is a storage backend type.
type Provider struct {
	Name        string           `json:"Name"`
	Description string           `json:"Description"`
	Prefix      string           `json:"Prefix"`
	Options     []ProviderOption `json:"Options"`
}

// Bookmark is a configured remote. Params hold the raw config keys.
type Bookmark struct {
	Name   string
	Type   string
	Params map[string]any
}

// Providers returns the supported providers sorted by prefix.
func (c *Client) Providers(ctx context.Context) ([]Provider, error) {
	var resp struct {
		Providers []Provider `json:"providers"`
	}
	if err := c.CallInto(ctx, "config/providers", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Provider, 0, len(resp.Providers))
	for _, p := range resp.Providers {
		if Supported(p.Prefix) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out, nil
}

// Bookmarks returns the configured remotes of supported types, sorted by name.
func (c *Client) Bookmarks(ctx context.Context) ([]Bookmark, error) {
	var dump map[string]map[string]any
	if err := c.CallInto(ctx, "config/dump", nil, &dump); err != nil {
		return nil, err
	}
	out := make([]Bookmark, 0, len(dump))
	for name, params := range dump {
		b := toBookmark(name, params)
		if Supported(b.Type) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Bookmark fetches a single remote.
func (c *Client) Bookmark(ctx context.Context, name string) (Bookmark, error) {
	var params map[string]any
	if err := c.CallInto(ctx, "config/get", map[string]any{"name": name}, &params); err != nil {
		return Bookmark{}, err
	}
	return toBookmark(name, params), nil
}

// CreateBookmark creates a remote non-interactively, obscuring passwords.
func (c *Client) CreateBookmark(ctx context.Context, name, provider string, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	_, err := c.Call(ctx, "config/create", map[string]any{
		"name":       name,
		"type":       provider,
		"parameters": params,
		"opt":        map[string]any{"obscure": true, "nonInteractive": true},
	})
	return err
}

// UpdateBookmark replaces the given keys of an existing remote.
func (c *Client) UpdateBookmark(ctx context.Context, name string, params map[string]any) error {
	_, err := c.Call(ctx, "config/update", map[string]any{
		"name":       name,
		"parameters": params,
		"opt":        map[string]any{"obscure": true, "nonInteractive": true},
	})
	return err
}

// DeleteBookmark removes a remote from the config store.
func (c *Client) DeleteBookmark(ctx context.Context, name string) error {
	_, err := c.Call(ctx, "config/delete", map[string]any{"name": name})
	return err
}

func toBookmark(name string, params map[string]any) Bookmark {
	b := Bookmark{Name: name, Params: params}
	if t, ok := params["type"].(string); ok {
		b.Type = t
	}
	return b
}
