package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/repository/chromem"
	"github.com/anishgillella/Voice-Receptionist/pkg/repository/firestore"
	"github.com/anishgillella/Voice-Receptionist/pkg/repository/memory"
	"github.com/anishgillella/Voice-Receptionist/pkg/repository/sqlite"
)

// testDimension keeps test vectors short and readable
const testDimension = 4

func newMemoryRepository(t *testing.T) interfaces.Repository {
	return memory.New(memory.WithDimension(testDimension))
}

func newSQLiteRepository(t *testing.T) interfaces.Repository {
	path := filepath.Join(t.TempDir(), "receptionist.db")
	repo, err := sqlite.New(context.Background(), path, sqlite.WithDimension(testDimension))
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newChromemRepository(t *testing.T) interfaces.Repository {
	store, err := chromem.New("", chromem.WithDimension(testDimension))
	gt.NoError(t, err).Required()
	return chromem.Wrap(memory.New(memory.WithDimension(testDimension)), store)
}

// newFirestoreRepository isolates every test in its own collection prefix
func newFirestoreRepository(t *testing.T) interfaces.Repository {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	opts := []firestore.Option{
		firestore.WithCollectionPrefix("test_" + uuid.NewString()[:8] + "_"),
		firestore.WithDimension(testDimension),
	}
	if databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID"); databaseID != "" {
		opts = append(opts, firestore.WithDatabaseID(databaseID))
	}

	repo, err := firestore.New(context.Background(), projectID, opts...)
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newCustomerID() string {
	return "cust-" + uuid.NewString()
}
