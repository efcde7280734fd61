// internal/service/order/infrastructure/adapter/identity_http_adapter.go
package adapter

import (
	"context"
	"fmt"
	"net/http"

	"bookstore/internal/pkg/httpclient"
	"bookstore/internal/service/order/domain/port"
)

// IdentityHTTPAdapter 实现了 port.IdentityService 接口。
// token 的签发与管理属于外部身份服务，这里只做校验调用。
type IdentityHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewIdentityHTTPAdapter(client *httpclient.Client, baseURL string) *IdentityHTTPAdapter {
	return &IdentityHTTPAdapter{client: client, baseURL: baseURL}
}

func (a *IdentityHTTPAdapter) Validate(ctx context.Context, bearerToken string) (port.UserInfo, error) {
	var resp struct {
		UserID uint64 `json:"userId"`
		Role   string `json:"role"`
	}
	err := a.client.DoJSON(ctx, http.MethodGet, a.baseURL+"/auth/validate",
		map[string]string{"Authorization": "Bearer " + bearerToken}, nil, &resp)
	if err != nil {
		return port.UserInfo{}, fmt.Errorf("identity validation: %w", err)
	}
	if resp.UserID == 0 {
		return port.UserInfo{}, fmt.Errorf("identity validation: empty user id in response")
	}
	return port.UserInfo{UserID: resp.UserID, Role: resp.Role}, nil
}
