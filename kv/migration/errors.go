package migration

// Engine failure codes. They layer the migration vocabulary on top of the
// platform error codes in kit/errors; retrieve them from a returned error
// with errors.ErrorCode.
const (
	// ERegistryIntegrity marks a catalog whose chain has a gap, duplicate,
	// or ordering violation, or whose pending chain does not start at the
	// stored version. A broken chain is never partially executed.
	ERegistryIntegrity = "registry integrity violation"

	// EPreconditionFailed marks a migration whose CanMigrate hook reported
	// false. The stored version is held back at the previous step.
	EPreconditionFailed = "migration precondition failed"

	// EMigrationFailed marks a migration whose body returned an error or
	// panicked. The originating cause is wrapped.
	EMigrationFailed = "migration failed"

	// EStorageUnavailable marks a store operation that failed independently
	// of migration logic, such as reading or persisting the stored version.
	EStorageUnavailable = "storage unavailable"
)
