package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

func runMemoryRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create assigns ID and timestamp", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		customerID := model.CustomerID(newCustomerID())
		created, err := repo.Memory().Create(ctx, &model.MemoryEntry{
			CustomerID:     customerID,
			ConversationID: "conv-1",
			Type:           types.MemoryTypeObjection,
			Content:        "Concerned about onboarding time",
		})
		gt.NoError(t, err).Required()
		gt.Value(t, created.ID).NotEqual(model.MemoryID(""))
		gt.Bool(t, created.CreatedAt.IsZero()).False()

		list, err := repo.Memory().List(ctx, customerID, "")
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(1).Required()
		gt.Value(t, list[0].Content).Equal("Concerned about onboarding time")
		gt.Value(t, list[0].ConversationID).Equal(model.ConversationID("conv-1"))
	})

	t.Run("Create rejects a duplicate ID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		customerID := model.CustomerID(newCustomerID())
		entry := &model.MemoryEntry{
			ID:         model.MemoryIDFor(newCustomerID() + "/email_sent"),
			CustomerID: customerID,
			Type:       types.MemoryTypeEmailSent,
			Content:    "send email: brochure",
		}
		_, err := repo.Memory().Create(ctx, entry)
		gt.NoError(t, err).Required()

		_, err = repo.Memory().Create(ctx, entry)
		gt.Error(t, err).Is(model.ErrAlreadyExists)

		list, err := repo.Memory().List(ctx, customerID, "")
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(1)
	})

	t.Run("Create rejects unknown memory type", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Memory().Create(context.Background(), &model.MemoryEntry{
			CustomerID: model.CustomerID(newCustomerID()),
			Type:       types.MemoryType("gossip"),
			Content:    "x",
		})
		gt.Error(t, err).Is(model.ErrValidation)
	})

	t.Run("List returns newest first and filters by type", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		customerID := model.CustomerID(newCustomerID())
		entries := []*model.MemoryEntry{
			{CustomerID: customerID, Type: types.MemoryTypePreference, Content: "prefers email"},
			{CustomerID: customerID, Type: types.MemoryTypeCommitment, Content: "will sign by Q3"},
			{CustomerID: customerID, Type: types.MemoryTypePreference, Content: "no calls before 10am"},
		}
		for _, e := range entries {
			_, err := repo.Memory().Create(ctx, e)
			gt.NoError(t, err).Required()
			time.Sleep(5 * time.Millisecond)
		}
		_, err := repo.Memory().Create(ctx, &model.MemoryEntry{
			CustomerID: model.CustomerID(newCustomerID()),
			Type:       types.MemoryTypePreference,
			Content:    "someone else",
		})
		gt.NoError(t, err).Required()

		all, err := repo.Memory().List(ctx, customerID, "")
		gt.NoError(t, err).Required()
		gt.Array(t, all).Length(3).Required()
		gt.Value(t, all[0].Content).Equal("no calls before 10am")
		gt.Value(t, all[2].Content).Equal("prefers email")

		prefs, err := repo.Memory().List(ctx, customerID, types.MemoryTypePreference)
		gt.NoError(t, err).Required()
		gt.Array(t, prefs).Length(2).Required()
		gt.Value(t, prefs[0].Content).Equal("no calls before 10am")
		gt.Value(t, prefs[1].Content).Equal("prefers email")
	})

	t.Run("List of unknown customer is empty", func(t *testing.T) {
		repo := newRepo(t)
		list, err := repo.Memory().List(context.Background(), model.CustomerID(newCustomerID()), "")
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(0)
	})
}

func TestMemoryRepository_Memory(t *testing.T) {
	runMemoryRepositoryTest(t, newMemoryRepository)
}

func TestMemoryRepository_SQLite(t *testing.T) {
	runMemoryRepositoryTest(t, newSQLiteRepository)
}

func TestMemoryRepository_Firestore(t *testing.T) {
	runMemoryRepositoryTest(t, newFirestoreRepository)
}
