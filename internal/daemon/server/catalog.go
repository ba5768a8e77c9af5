package server

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/rclonetray/rclonetray/internal/rc"
)

func (s *controlService) ListProviders(ctx context.Context, _ *emptypb.Empty) (*ProviderList, error) {
	providers, err := s.server.opts.Bookmarks.Providers(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	list := &ProviderList{Providers: make([]*Provider, 0, len(providers))}
	for _, p := range providers {
		list.Providers = append(list.Providers, toProvider(p))
	}
	return list, nil
}

func (s *controlService) GetBookmark(ctx context.Context, req *BookmarkRef) (*BookmarkConfig, error) {
	if req.Name == "" {
		return nil, toStatus(errBookmarkRequired)
	}
	b, err := s.server.opts.Bookmarks.BookmarkConfig(ctx, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return &BookmarkConfig{Name: b.Name, Type: b.Type, Params: stringParams(b.Params)}, nil
}

func (s *controlService) CreateBookmark(ctx context.Context, req *BookmarkConfigRequest) (*emptypb.Empty, error) {
	if req.Name == "" {
		return nil, toStatus(errBookmarkRequired)
	}
	err := s.server.opts.Bookmarks.CreateBookmark(ctx, req.Name, req.Provider, anyParams(req.Params))
	return s.catalogResult("create", req.Name, err)
}

func (s *controlService) UpdateBookmark(ctx context.Context, req *BookmarkConfigRequest) (*emptypb.Empty, error) {
	if req.Name == "" {
		return nil, toStatus(errBookmarkRequired)
	}
	err := s.server.opts.Bookmarks.UpdateBookmark(ctx, req.Name, anyParams(req.Params))
	return s.catalogResult("update", req.Name, err)
}

func (s *controlService) DeleteBookmark(ctx context.Context, req *BookmarkRef) (*emptypb.Empty, error) {
	if req.Name == "" {
		return nil, toStatus(errBookmarkRequired)
	}
	err := s.server.opts.Bookmarks.DeleteBookmark(ctx, req.Name)
	return s.catalogResult("delete", req.Name, err)
}

func (s *controlService) catalogResult(op, name string, err error) (*emptypb.Empty, error) {
	log := s.server.log.WithField("bookmark", name)
	if err != nil {
		log.WithError(err).Warnf("%s bookmark failed", op)
		return nil, toStatus(err)
	}
	log.Infof("%s bookmark done", op)
	return &emptypb.Empty{}, nil
}

func toProvider(p rc.Provider) *Provider {
	out := &Provider{Prefix: p.Prefix, Name: p.Name, Description: p.Description}
	for _, o := range p.Options {
		out.Options = append(out.Options, &ProviderOption{
			Name:       o.Name,
			Help:       o.Help,
			Required:   o.Required,
			Advanced:   o.Advanced,
			IsPassword: o.IsPassword,
		})
	}
	return out
}

// stringParams flattens config values for display. The type key is
// carried separately.
func stringParams(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if k == "type" {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

func anyParams(params map[string]string) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
