package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemWarningsService_AddAndGet(t *testing.T) {
	svc := NewSystemWarningsService()

	id := svc.AddWarning(WarningCategoryStreamHealth, "Stream disabled", "5 consecutive failed runs", "telegram-main")
	assert.NotEmpty(t, id)

	warnings := svc.GetWarnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, WarningCategoryStreamHealth, warnings[0].Category)
	assert.Equal(t, "Stream disabled", warnings[0].Message)
	assert.Equal(t, "5 consecutive failed runs", warnings[0].Details)
	assert.Equal(t, "telegram-main", warnings[0].SourceID)
	assert.False(t, warnings[0].CreatedAt.IsZero())
}

func TestSystemWarningsService_ClearBySourceID(t *testing.T) {
	svc := NewSystemWarningsService()

	svc.AddWarning(WarningCategoryStreamHealth, "Stream disabled", "", "telegram-main")
	svc.AddWarning(WarningCategoryStreamHealth, "Stream disabled", "", "slack-support")

	assert.Len(t, svc.GetWarnings(), 2)

	// Clear telegram warning
	cleared := svc.ClearBySourceID(WarningCategoryStreamHealth, "telegram-main")
	assert.True(t, cleared)
	assert.Len(t, svc.GetWarnings(), 1)
	assert.Equal(t, "slack-support", svc.GetWarnings()[0].SourceID)

	// Clear non-existent
	cleared = svc.ClearBySourceID(WarningCategoryStreamHealth, "nonexistent")
	assert.False(t, cleared)
}

func TestSystemWarningsService_ReplacesDuplicate(t *testing.T) {
	svc := NewSystemWarningsService()

	svc.AddWarning(WarningCategoryDocSync, "First error", "err1", "docs-repo")
	svc.AddWarning(WarningCategoryDocSync, "Second error", "err2", "docs-repo")

	// Should have replaced the first warning, not added a second
	warnings := svc.GetWarnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "Second error", warnings[0].Message)
	assert.Equal(t, "err2", warnings[0].Details)
}

func TestSystemWarningsService_Empty(t *testing.T) {
	svc := NewSystemWarningsService()
	assert.Empty(t, svc.GetWarnings())
}

func TestSystemWarningsService_ThreadSafety(t *testing.T) {
	svc := NewSystemWarningsService()
	var wg sync.WaitGroup

	// Concurrent adds
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.AddWarning("test", "msg", "", "")
		}()
	}

	// Concurrent reads
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.GetWarnings()
		}()
	}

	wg.Wait()
	// Just ensure no panics — exact count doesn't matter for concurrency test
	assert.NotNil(t, svc.GetWarnings())
}
