package memory

import (
	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = interfaces.ErrNotFound

// Repository is an alias for Memory to match the pattern
type Repository = Memory

// Memory is an in-process implementation of interfaces.Repository for
// development and tests.
type Memory struct {
	fact     *factRepository
	identity *identityRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		fact:     newFactRepository(),
		identity: newIdentityRepository(),
	}
}

func (m *Memory) Fact() interfaces.FactRepository {
	return m.fact
}

func (m *Memory) Identity() interfaces.IdentityRepository {
	return m.identity
}

func (m *Memory) Close() error {
	return nil
}
