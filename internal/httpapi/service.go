package httpapi

import (
	"context"

	"llamaworker/internal/registry"
	"llamaworker/internal/worker"
	"llamaworker/pkg/types"
)

// WorkerService serves the API from a worker host and an optional model
// registry.
type WorkerService struct {
	host   *worker.Host
	models *registry.Registry
}

var _ Service = (*WorkerService)(nil)

func NewService(host *worker.Host, models *registry.Registry) *WorkerService {
	return &WorkerService{host: host, models: models}
}

func (s *WorkerService) ListModels() ([]types.Model, error) {
	if s.models == nil {
		return nil, nil
	}
	return s.models.List()
}

func (s *WorkerService) Status() types.StatusResponse { return s.host.Worker().Status() }

func (s *WorkerService) Ready() bool { return s.host.Worker().State() == worker.StateReady }

func (s *WorkerService) Do(ctx context.Context, cmd types.Command, onEvent func(types.Event) error) (types.Event, error) {
	return s.host.Do(ctx, cmd, onEvent)
}
