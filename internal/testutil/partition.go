package testutil

import "github.com/google/uuid"

// NewPartition returns a partition name unique to one test run, so tests
// sharing a database never see each other's documents.
func NewPartition() string {
	return "test-" + uuid.NewString()
}
