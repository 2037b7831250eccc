package services

import (
	"context"
	"sync"

	"github.com/prudhvinik1/homepresence/internal/models"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []models.StatusChange
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, change models.StatusChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return p.err
}
