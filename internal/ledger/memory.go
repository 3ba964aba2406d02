package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
)

// Memory is an in-process ledger for tests and single-node deployments.
type Memory struct {
	mu sync.Mutex
	// holds[ticketTypeID][sessionID]
	holds map[string]map[string]domain.Hold
}

func NewMemory() *Memory {
	return &Memory{holds: make(map[string]map[string]domain.Hold)}
}

func (m *Memory) Put(_ context.Context, h domain.Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byType, ok := m.holds[h.TicketTypeID]
	if !ok {
		byType = make(map[string]domain.Hold)
		m.holds[h.TicketTypeID] = byType
	}
	byType[h.SessionID] = h
	return nil
}

func (m *Memory) Get(_ context.Context, ticketTypeID, sessionID string) (*domain.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[ticketTypeID][sessionID]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (m *Memory) ActiveForType(_ context.Context, ticketTypeID string, now time.Time) ([]domain.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []domain.Hold
	for sessionID, h := range m.holds[ticketTypeID] {
		if !h.Active(now) {
			m.remove(ticketTypeID, sessionID)
			continue
		}
		active = append(active, h)
	}
	return active, nil
}

func (m *Memory) Remove(_ context.Context, ticketTypeID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(ticketTypeID, sessionID)
	return nil
}

func (m *Memory) RemoveSession(_ context.Context, sessionID string, ticketTypeIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(ticketTypeIDs) == 0 {
		for typeID := range m.holds {
			m.remove(typeID, sessionID)
		}
		return nil
	}
	for _, typeID := range ticketTypeIDs {
		m.remove(typeID, sessionID)
	}
	return nil
}

func (m *Memory) RemoveSessionPrefix(_ context.Context, baseSessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for typeID, byType := range m.holds {
		for sessionID := range byType {
			if strings.HasPrefix(sessionID, baseSessionID) {
				m.remove(typeID, sessionID)
			}
		}
	}
	return nil
}

func (m *Memory) Sweep(_ context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for typeID, byType := range m.holds {
		for sessionID, h := range byType {
			if !h.Active(now) {
				m.remove(typeID, sessionID)
			}
		}
	}
	return nil
}

// remove assumes m.mu is held.
func (m *Memory) remove(ticketTypeID, sessionID string) {
	byType, ok := m.holds[ticketTypeID]
	if !ok {
		return
	}
	delete(byType, sessionID)
	if len(byType) == 0 {
		delete(m.holds, ticketTypeID)
	}
}
