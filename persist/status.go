package persist

// Status is the persistence status of a cached entity.
type Status uint32

const (
	// StatusTransient marks an entity that was never written to the storage.
	StatusTransient Status = iota
	// StatusPersisted marks an entity that exists in the storage.
	StatusPersisted
	// StatusDeleted marks an entity that was removed from the storage. It is terminal.
	StatusDeleted
)

// String returns a human-readable version of the Status.
func (s Status) String() string {
	switch s {
	case StatusTransient:
		return "Transient"
	case StatusPersisted:
		return "Persisted"
	case StatusDeleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}
