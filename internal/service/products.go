package service

import (
	"context"
	"fmt"
	"strings"

	"freshmart/backend/internal/domain"
	"freshmart/backend/internal/rbac"
	"freshmart/backend/internal/store"
)

// ListProducts returns the catalog. Inactive products are listed only for
// roles that can edit the catalog, and purchase prices are redacted for roles
// without financial access.
func (s *Service) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	actor, err := s.authorize(ctx, rbac.PermProductsRead)
	if err != nil {
		return nil, err
	}
	if !rbac.HasPermission(actor.Role, rbac.PermProductsWrite) {
		filter.IncludeInactive = false
	}

	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, err
	}
	return rbac.FilterFinancialData(products, actor.Role), nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	actor, err := s.authorize(ctx, rbac.PermProductsRead)
	if err != nil {
		return domain.Product{}, err
	}

	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	if !product.IsActive && !rbac.HasPermission(actor.Role, rbac.PermProductsWrite) {
		return domain.Product{}, store.NotFound("product")
	}
	return rbac.FilterFinancialData(*product, actor.Role), nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.authorize(ctx, rbac.PermProductsWrite)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	if err := s.validateRequest(req); err != nil {
		return domain.Product{}, err
	}

	purchasePrice := req.PurchasePrice
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:          req.Name,
		Category:      req.Category,
		Description:   strings.TrimSpace(req.Description),
		Unit:          strings.TrimSpace(req.Unit),
		Price:         req.Price,
		PurchasePrice: &purchasePrice,
		Stock:         req.InitialStock,
		IsActive:      true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%.2f,stock=%d", created.Name, created.Price, created.Stock))
	s.invalidateMetrics(ctx)
	return rbac.FilterFinancialData(*created, actor.Role), nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := s.authorize(ctx, rbac.PermProductsWrite)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		updated.Category = strings.ToLower(strings.TrimSpace(*req.Category))
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Unit != nil {
		updated.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}
	if req.PurchasePrice != nil {
		cost := *req.PurchasePrice
		updated.PurchasePrice = &cost
	}
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}
	if updated.Name == "" || updated.Category == "" {
		return domain.Product{}, fmt.Errorf("%w: name and category must not be blank", store.ErrInvalidInput)
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("price=%.2f->%.2f,active=%t", existing.Price, saved.Price, saved.IsActive))
	s.invalidateMetrics(ctx)
	return rbac.FilterFinancialData(*saved, actor.Role), nil
}

// DeleteProduct deactivates the product. Historical orders keep referencing it.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	inactive := false
	_, err := s.UpdateProduct(ctx, id, domain.ProductUpdateRequest{IsActive: &inactive})
	return err
}

func (s *Service) AdjustStock(ctx context.Context, id string, req domain.StockAdjustRequest) (domain.Product, error) {
	actor, err := s.authorize(ctx, rbac.PermInventoryWrite)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Product{}, err
	}

	product, err := s.repo.AdjustStock(ctx, strings.TrimSpace(id), req.Delta)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "stock_adjust", "product", product.ID, fmt.Sprintf("delta=%d,stock=%d,reason=%s", req.Delta, product.Stock, strings.TrimSpace(req.Reason)))
	return rbac.FilterFinancialData(*product, actor.Role), nil
}
