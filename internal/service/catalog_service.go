package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"class-booking/internal/models"
	"class-booking/internal/redisclient"
	"class-booking/internal/store"
	"class-booking/internal/util"

	"go.uber.org/zap"
)

// CatalogService serves the public class pages and the student dashboard
type CatalogService struct {
	repo     Repository
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo Repository, cache Cache, cacheTTL time.Duration) *CatalogService {
	return &CatalogService{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// ListClasses returns active classes with their schedules, newest first
func (s *CatalogService) ListClasses(ctx context.Context) ([]models.Class, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListClasses")
	defer span.End()

	var classes []models.Class
	found, err := s.cache.GetJSON(ctx, redisclient.KeyActiveClasses, &classes)
	if err != nil {
		s.logger.Warn("Class cache read failed", zap.Error(err))
	}
	if found {
		util.ClassCacheTotal.WithLabelValues("hit").Inc()
		return classes, nil
	}
	util.ClassCacheTotal.WithLabelValues("miss").Inc()

	classes, err = s.repo.ListActiveClasses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	if classes == nil {
		classes = []models.Class{}
	}

	if s.cacheTTL > 0 {
		if err := s.cache.SetJSON(ctx, redisclient.KeyActiveClasses, classes, s.cacheTTL); err != nil {
			s.logger.Warn("Class cache write failed", zap.Error(err))
		}
	}
	return classes, nil
}

// GetClass returns one active class with its schedules
func (s *CatalogService) GetClass(ctx context.Context, id string) (*models.Class, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetClass")
	defer span.End()

	class, err := s.repo.GetActiveClass(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrClassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get class: %w", err)
	}
	return class, nil
}

// ListEnrollments returns the caller's confirmed enrollments, newest first
func (s *CatalogService) ListEnrollments(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListEnrollments")
	defer span.End()

	enrollments, err := s.repo.ListUserEnrollments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return enrollments, nil
}

// InvalidateClasses drops the cached class listing
func (s *CatalogService) InvalidateClasses(ctx context.Context) {
	if err := s.cache.Delete(ctx, redisclient.KeyActiveClasses); err != nil {
		s.logger.Warn("Class cache invalidation failed", zap.Error(err))
	}
}
