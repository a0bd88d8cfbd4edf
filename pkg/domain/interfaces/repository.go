package interfaces

// Repository defines the interface for structured persistence: the fact
// table and the core identity record.
type Repository interface {
	Fact() FactRepository
	Identity() IdentityRepository
	Close() error
}
