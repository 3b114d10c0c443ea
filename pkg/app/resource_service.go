package app

import (
	"context"

	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/resource"
	"github.com/sipeed/picocrud/pkg/nested"
)

// ---------------------------------------------------------------------------
// Resource application service
// ---------------------------------------------------------------------------

// ResourceService orchestrates parent-aggregate use cases. It is also the
// nested.Accessor the child engines fetch and persist through.
type ResourceService struct {
	repo     resource.Repository
	eventBus domain.EventBus
}

func NewResourceService(repo resource.Repository, eventBus domain.EventBus) *ResourceService {
	return &ResourceService{repo: repo, eventBus: eventBus}
}

// CreateResource creates and persists a new resource.
func (s *ResourceService) CreateResource(ctx context.Context, name, description string, tags []string, user domain.User) (*resource.Resource, error) {
	res := resource.New(name, description)
	for _, t := range tags {
		res.Tags.Add(domain.Tag(t))
	}
	res.Touch(user)
	if err := res.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, res); err != nil {
		return nil, err
	}

	s.publishEvents(res)
	return res, nil
}

func (s *ResourceService) GetResource(ctx context.Context, id domain.EntityID) (*resource.Resource, error) {
	return s.repo.FindByID(ctx, id)
}

// ListResources returns every resource and the total count.
func (s *ResourceService) ListResources(ctx context.Context) ([]*resource.Resource, int, error) {
	all, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	return all, len(all), nil
}

// CountResources asks the store directly, without loading documents.
func (s *ResourceService) CountResources(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// ArchiveResource moves a resource out of the active set.
func (s *ResourceService) ArchiveResource(ctx context.Context, id domain.EntityID, user domain.User) (*resource.Resource, error) {
	res, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	res.Archive()
	res.Touch(user)
	if err := s.repo.Save(ctx, res); err != nil {
		return nil, err
	}

	s.publishEvents(res)
	return res, nil
}

func (s *ResourceService) DeleteResource(ctx context.Context, id domain.EntityID, user domain.User) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.eventBus != nil {
		s.eventBus.Publish(domain.NewEvent(domain.EventResourceDeleted, id, map[string]string{"user_id": user.ID}))
	}
	return nil
}

// ---------------------------------------------------------------------------
// nested.Accessor
// ---------------------------------------------------------------------------

// Fetch loads a working copy of the resource.
func (s *ResourceService) Fetch(ctx context.Context, id domain.EntityID, _ domain.User) (*resource.Resource, error) {
	return s.repo.FindByID(ctx, id)
}

// Persist stamps the resource with user and saves it.
func (s *ResourceService) Persist(ctx context.Context, id domain.EntityID, res *resource.Resource, user domain.User) (*resource.Resource, error) {
	if res.ID() != id {
		return nil, domain.BadRequestf("resource id %q does not match %q", res.ID(), id)
	}
	res.Touch(user)
	if err := s.repo.Save(ctx, res); err != nil {
		return nil, err
	}
	s.publishEvents(res)
	return res, nil
}

func (s *ResourceService) publishEvents(res *resource.Resource) {
	events := res.PullEvents()
	if s.eventBus == nil {
		return
	}
	for _, event := range events {
		s.eventBus.Publish(event)
	}
}

var _ nested.Accessor[*resource.Resource] = (*ResourceService)(nil)
