// Package metrics provides lightweight hooks for instrumentation.
package metrics

// Recorder captures metric events for the application.
type Recorder interface {
	// Key lifecycle metrics
	IncKeyCreated()
	IncKeyUpdated()
	IncKeyDeleted()

	// IncKeyValidation records a validation outcome:
	// "valid", "invalid", or "inactive".
	IncKeyValidation(result string)

	// Identity resolution metrics
	IncIdentityCacheHit()
	IncIdentityCacheMiss()
	IncUserUpserted()
}
