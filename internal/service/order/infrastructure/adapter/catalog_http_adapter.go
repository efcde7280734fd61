// internal/service/order/infrastructure/adapter/catalog_http_adapter.go
package adapter

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"bookstore/internal/pkg/cache"
	"bookstore/internal/pkg/httpclient"
	"bookstore/internal/service/order/domain/port"
)

// CatalogHTTPAdapter 实现了 port.CatalogService 接口：
// 批量查询目录服务的图书信息，前面挂一层 Redis 读穿缓存。
// 纯展示用途，无一致性要求。
type CatalogHTTPAdapter struct {
	client  *httpclient.Client
	cache   *cache.Cache
	baseURL string
}

func NewCatalogHTTPAdapter(client *httpclient.Client, c *cache.Cache, baseURL string) *CatalogHTTPAdapter {
	return &CatalogHTTPAdapter{client: client, cache: c, baseURL: baseURL}
}

func (a *CatalogHTTPAdapter) GetBooks(ctx context.Context, ids []uint64) (map[uint64]port.BookInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	// 排序后构造缓存键，同一组 id 的查询命中同一条缓存
	sorted := append([]uint64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = fmt.Sprintf("%d", id)
	}
	key := "catalog:books:" + strings.Join(parts, ",")

	var books []port.BookInfo
	fetch := func(ctx context.Context) (any, error) {
		var resp []port.BookInfo
		err := a.client.DoJSON(ctx, http.MethodPost, a.baseURL+"/books/batch",
			nil, map[string]any{"ids": sorted}, &resp)
		if err != nil {
			return nil, fmt.Errorf("catalog batch lookup: %w", err)
		}
		return resp, nil
	}

	if a.cache != nil {
		if err := a.cache.GetOrCompute(ctx, key, &books, fetch); err != nil {
			return nil, err
		}
	} else {
		resp, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		books = resp.([]port.BookInfo)
	}

	out := make(map[uint64]port.BookInfo, len(books))
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}
