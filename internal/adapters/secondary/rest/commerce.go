package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/c-pro/geche"
	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/ports"
)

// CommerceClient reads customers and orders from the e-commerce backend.
// Customer profiles change rarely and are cached for CacheTTL.
type CommerceClient struct {
	t         *transport
	customers geche.Geche[string, *domain.Customer]
}

var _ ports.CommerceAPI = (*CommerceClient)(nil)

// NewCommerceClient creates the client. The cache is swept until ctx is done.
func NewCommerceClient(ctx context.Context, cfg Config, cacheTTL time.Duration) (*CommerceClient, error) {
	t, err := newTransport(cfg, nil, "commerce_api")
	if err != nil {
		return nil, err
	}

	c := &CommerceClient{t: t}
	if cacheTTL > 0 {
		c.customers = geche.NewMapTTLCache[string, *domain.Customer](ctx, cacheTTL, time.Minute)
	}
	return c, nil
}

// Customer fetches a profile. A response without a user is ErrNotFound.
func (c *CommerceClient) Customer(ctx context.Context, customerID string) (*domain.Customer, error) {
	if customerID == "" {
		return nil, apperrors.ErrNotFound
	}

	if c.customers != nil {
		if cached, err := c.customers.Get(customerID); err == nil {
			return cached, nil
		} else if !errors.Is(err, geche.ErrNotFound) {
			c.t.logger.Warn("customer cache read failed", "customer_id", customerID, "error", err)
		}
	}

	var resp domain.CustomerResponse
	if err := c.t.do(ctx, http.MethodGet, "/profile/"+escape(customerID), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch customer: %w", err)
	}
	if resp.User == nil {
		return nil, fmt.Errorf("fetch customer %s: %w", customerID, apperrors.ErrNotFound)
	}

	if c.customers != nil {
		c.customers.Set(customerID, resp.User)
	}
	return resp.User, nil
}

// Orders fetches the orders of a customer. Orders are never cached.
func (c *CommerceClient) Orders(ctx context.Context, customerID string) ([]domain.Order, error) {
	if customerID == "" {
		return nil, apperrors.ErrNotFound
	}

	var resp domain.OrdersResponse
	if err := c.t.do(ctx, http.MethodGet, "/order/my-orders/"+escape(customerID), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}
	if resp.Data == nil {
		return []domain.Order{}, nil
	}
	return resp.Data, nil
}
