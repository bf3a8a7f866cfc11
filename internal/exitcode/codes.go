package exitcode

// Exit codes for the era5query CLI.
const (
	// Success - query completed successfully
	Success = 0

	// ConfigError - missing or invalid flags or configuration
	ConfigError = 1

	// QueryError - the query was rejected (bad coordinates, out of range, bad window)
	// Don't retry: fix the query first
	QueryError = 2

	// DataError - the dataset file could not be opened or decoded
	// Don't retry: investigate the data
	DataError = 3

	// StorageError - failed to fetch the dataset from MinIO/S3
	// Retry with backoff
	StorageError = 4

	// ExportError - failed to write results to VictoriaMetrics
	// Retry with backoff
	ExportError = 5
)
