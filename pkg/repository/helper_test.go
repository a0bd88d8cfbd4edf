package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/repository/chromem"
	"github.com/Dev-Marygold/Laffey/pkg/repository/firestore"
	"github.com/Dev-Marygold/Laffey/pkg/repository/memory"
	"github.com/Dev-Marygold/Laffey/pkg/repository/sqlite"
	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
)

func firestoreTestConfig(t *testing.T) (string, string) {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	return projectID, databaseID
}

func newMemoryRepository(t *testing.T) interfaces.Repository {
	return memory.New()
}

func newSQLiteRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	repo, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "laffey.db"))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID, databaseID := firestoreTestConfig(t)

	// Unique prefix keeps DeleteAll and Count tests isolated between runs
	prefix := "test_" + uuid.NewString()[:8]
	repo, err := firestore.New(context.Background(), projectID, databaseID, firestore.WithCollectionPrefix(prefix))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		_, _ = repo.Fact().DeleteAll(context.Background())
		gt.NoError(t, repo.Close())
	})
	return repo
}

func newMemoryVectorStore(t *testing.T) interfaces.VectorStore {
	return memory.NewVectorStore()
}

func newChromemVectorStore(t *testing.T) interfaces.VectorStore {
	t.Helper()

	store, err := chromem.New("")
	gt.NoError(t, err).Required()
	return store
}

func newPersistentChromemVectorStore(t *testing.T) interfaces.VectorStore {
	t.Helper()

	store, err := chromem.New(filepath.Join(t.TempDir(), "vectors"))
	gt.NoError(t, err).Required()
	return store
}

func newFirestoreVectorStore(t *testing.T) interfaces.VectorStore {
	t.Helper()

	projectID, databaseID := firestoreTestConfig(t)

	prefix := "test_" + uuid.NewString()[:8]
	store, err := firestore.NewVectorStore(context.Background(), projectID, databaseID, firestore.WithVectorCollectionPrefix(prefix))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		_, _ = store.DeleteAll(context.Background())
		gt.NoError(t, store.Close())
	})
	return store
}
