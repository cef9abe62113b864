package services

import (
	"context"
	"log/slog"

	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/ports"
	"github.com/lorrc/agent-console/internal/infrastructure/logging"
	"golang.org/x/sync/errgroup"
)

// CustomerLookupService provides the customer panel shown next to a ticket.
type CustomerLookupService struct {
	commerce ports.CommerceAPI
	logger   *slog.Logger
}

var _ ports.CustomerLookupService = (*CustomerLookupService)(nil)

// NewCustomerLookupService creates a new CustomerLookupService.
func NewCustomerLookupService(commerce ports.CommerceAPI, logger *slog.Logger) ports.CustomerLookupService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &CustomerLookupService{
		commerce: commerce,
		logger:   logger.With("component", "customer_lookup"),
	}
}

// Overview fetches the profile and the orders of a customer at the same
// time. Either half may fail on its own: the profile is then nil and the
// orders empty. Only cancellation of ctx is returned as an error.
func (s *CustomerLookupService) Overview(ctx context.Context, customerID string) (*domain.CustomerOverview, error) {
	if customerID == "" {
		return nil, apperrors.ErrBadRequest
	}

	overview := &domain.CustomerOverview{Orders: []domain.Order{}}

	var g errgroup.Group
	g.Go(func() error {
		customer, err := s.commerce.Customer(ctx, customerID)
		if err != nil {
			s.logger.Warn("failed to fetch customer", "customer_id", customerID, "error", err)
			return nil
		}
		overview.Customer = customer
		return nil
	})
	g.Go(func() error {
		orders, err := s.commerce.Orders(ctx, customerID)
		if err != nil {
			s.logger.Warn("failed to fetch orders", "customer_id", customerID, "error", err)
			return nil
		}
		if orders != nil {
			overview.Orders = orders
		}
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return overview, nil
}
