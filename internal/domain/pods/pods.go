// Package pods implements pod lifecycle operations: creation, lookup,
// and owner-cascading deletion (SPEC_FULL.md §3, §4.6).
package pods

import (
	"context"
	"encoding/json"
	"time"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/cache"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
	"github.com/webpods-go/webpods/internal/validate"
)

const cacheTTL = 5 * time.Minute

// Service implements pod CRUD on top of a Store, invalidating the pods
// cache pool the same way domain/streams invalidates the streams pool.
type Service struct {
	store storage.Store
	cache cache.Cache
}

func New(store storage.Store, c cache.Cache) *Service {
	return &Service{store: store, cache: c}
}

// Create registers a new pod owned by userID. It is the only path that
// creates a pod; no HTTP handler calls it, so a request to a pod name
// that doesn't exist yet does not create that pod.
func (s *Service) Create(ctx context.Context, name, ownerUserID string, metadata map[string]any) (*types.Pod, error) {
	if err := validate.PodName(name); err != nil {
		return nil, err
	}
	if ownerUserID == "" {
		return nil, apperrors.New(apperrors.KindUnauthorized, "pod creation requires an authenticated user")
	}

	if _, err := s.store.GetPod(ctx, name); err == nil {
		return nil, apperrors.New(apperrors.KindPodExists, "pod already exists: "+name)
	} else if apperrors.KindOf(err) != apperrors.KindPodNotFound {
		return nil, err
	}

	pod, err := s.store.CreatePod(ctx, name, ownerUserID, metadata)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = cache.InvalidatePod(ctx, s.cache, name, ownerUserID)
	}
	return pod, nil
}

func (s *Service) Get(ctx context.Context, name string) (*types.Pod, error) {
	key := cache.PodKey(name)
	if s.cache != nil {
		if raw, ok, _ := s.cache.Get(ctx, cache.PoolPods, key); ok {
			var pod types.Pod
			if json.Unmarshal(raw, &pod) == nil {
				return &pod, nil
			}
		}
	}

	pod, err := s.store.GetPod(ctx, name)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(pod); err == nil {
			_ = s.cache.Set(ctx, cache.PoolPods, key, raw, cacheTTL)
		}
	}
	return pod, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]*types.Pod, error) {
	return s.store.ListPodsForUser(ctx, userID)
}

// Delete removes a pod, cascading to all its streams and records. The
// caller is responsible for confirming the requester is the current
// owner (SPEC_FULL.md §4.6's owner resolution) before calling this.
func (s *Service) Delete(ctx context.Context, podName, ownerUserID string) error {
	if err := s.store.DeletePod(ctx, podName); err != nil {
		return err
	}
	if s.cache != nil {
		_ = cache.InvalidatePod(ctx, s.cache, podName, ownerUserID)
		_ = s.cache.Clear(ctx, cache.PoolStreams, cache.StreamKey(podName, "")+"*")
	}
	return nil
}
