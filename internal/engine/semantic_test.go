package engine

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

func TestUpdateCoreMemoryAppendJoinsWithNewline(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)

	first, err := te.UpdateCoreMemory(ctx, types.BlockTypePersona, "", types.CoreMemoryAppend, "Helpful and concise.")
	require.NoError(t, err)
	require.Equal(t, types.DefaultBlockKey, first.BlockKey)
	require.Equal(t, "Helpful and concise.", first.Content)

	second, err := te.UpdateCoreMemory(ctx, types.BlockTypePersona, "", types.CoreMemoryAppend, "Prefers short answers.")
	require.NoError(t, err)
	require.Equal(t, "Helpful and concise.\nPrefers short answers.", second.Content)
}

func TestUpdateCoreMemoryOverflowKeepsLeading(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)

	replaced, err := te.UpdateCoreMemory(ctx, types.BlockTypeUserProfile, "limits", types.CoreMemoryReplace, strings.Repeat("a", types.MaxCoreMemoryChars+1000))
	require.NoError(t, err)
	require.Equal(t, types.MaxCoreMemoryChars, utf8.RuneCountInString(replaced.Content))
	require.True(t, strings.HasPrefix(replaced.Content, "aaaa"))

	// Appending to a nearly full block keeps the head, not the tail.
	_, err = te.UpdateCoreMemory(ctx, types.BlockTypePersona, "limits", types.CoreMemoryReplace, strings.Repeat("b", types.MaxCoreMemoryChars-1))
	require.NoError(t, err)
	appended, err := te.UpdateCoreMemory(ctx, types.BlockTypePersona, "limits", types.CoreMemoryAppend, "zz")
	require.NoError(t, err)
	require.Equal(t, types.MaxCoreMemoryChars, utf8.RuneCountInString(appended.Content))
	require.True(t, strings.HasSuffix(appended.Content, "\nz"))
}

func TestUpdateCoreMemoryRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)

	_, err := te.UpdateCoreMemory(ctx, types.BlockTypePersona, "scratch", types.CoreMemoryReplace, "temporary notes")
	require.NoError(t, err)

	removed, err := te.UpdateCoreMemory(ctx, types.BlockTypePersona, "scratch", types.CoreMemoryRemove, "")
	require.NoError(t, err)
	require.Equal(t, types.BlockTypePersona, removed.BlockType)
	require.Equal(t, "scratch", removed.BlockKey)
	require.Empty(t, removed.Content)

	_, err = te.store.CoreBlock(ctx, types.BlockTypePersona, "scratch")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Removing a block that is already gone succeeds.
	_, err = te.UpdateCoreMemory(ctx, types.BlockTypePersona, "scratch", types.CoreMemoryRemove, "")
	require.NoError(t, err)
}

func TestUpdateCoreMemoryValidatesInput(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)

	_, err := te.UpdateCoreMemory(ctx, "mood", "", types.CoreMemoryAppend, "cheerful")
	require.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = te.UpdateCoreMemory(ctx, types.BlockTypePersona, "", "merge", "text")
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestUpsertEntityMergesObservations(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)

	first, err := te.UpsertEntity(ctx, entityUpsert("Alice", "person", "Works at Acme"))
	require.NoError(t, err)

	second, err := te.UpsertEntity(ctx, entityUpsert("Alice", "person", "Lives in Berlin"))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, []string{"Works at Acme", "Lives in Berlin"}, second.Observations)

	stats, err := te.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.EntityCount)

	// Re-indexing replaces the entity's vector instead of adding one.
	require.Equal(t, 1, te.vectors.Count())
}

func TestUpsertEntitySurvivesIndexFailure(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)
	te.embedder.FailOn = "Grenoble"

	ent, err := te.UpsertEntity(ctx, entityUpsert("Grenoble Lab", "organization", "Runs the ML cluster"))
	require.NoError(t, err)
	require.NotEmpty(t, ent.ID)

	// The row is committed; only the vector record is missing.
	require.Equal(t, 0, te.vectors.Count())
	got, err := te.store.EntityByName(ctx, "Grenoble Lab")
	require.NoError(t, err)
	require.Equal(t, ent.ID, got.ID)
}

func TestCreateRelationClosesPriorEdge(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)

	_, err := te.UpsertEntity(ctx, entityUpsert("Alice", "person", "Engineer"))
	require.NoError(t, err)
	_, err = te.UpsertEntity(ctx, entityUpsert("Acme", "organization", "Software company"))
	require.NoError(t, err)

	first, err := te.CreateRelation(ctx, "Alice", "Acme", "works_at")
	require.NoError(t, err)
	require.True(t, first.Active())
	require.Equal(t, 1.0, first.Weight)

	second, err := te.CreateRelation(ctx, "Alice", "Acme", "works_at")
	require.NoError(t, err)
	require.True(t, second.Active())
	require.NotEqual(t, first.ID, second.ID)

	stats, err := te.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.RelationCount)
	require.Equal(t, 1, stats.ActiveRelationCount)
}

func TestCreateRelationNamesMissingEntity(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)

	_, err := te.UpsertEntity(ctx, entityUpsert("Alice", "person", "Engineer"))
	require.NoError(t, err)

	_, err = te.CreateRelation(ctx, "Alice", "Ghost Corp", "works_at")
	require.ErrorIs(t, err, storage.ErrEntityNotFound)
	require.Contains(t, err.Error(), "Ghost Corp")
}

func TestSearchKnowledgeFiltersByEntityType(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)

	_, err := te.UpsertEntity(ctx, entityUpsert("Acme", "organization", "Builds developer tools"))
	require.NoError(t, err)
	_, err = te.UpsertEntity(ctx, entityUpsert("Berlin", "location", "Where the team sits"))
	require.NoError(t, err)

	all, err := te.SearchKnowledge(ctx, "developer tools company", "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)

	orgs, err := te.SearchKnowledge(ctx, "developer tools company", "organization", 10)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	require.Equal(t, "Acme", orgs[0].Name)

	_, err = te.SearchKnowledge(ctx, "anything", "castle", 10)
	require.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = te.SearchKnowledge(ctx, "  ", "", 10)
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSearchKnowledgeTouchesResults(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)

	ent, err := te.UpsertEntity(ctx, entityUpsert("Acme", "organization", "Builds developer tools"))
	require.NoError(t, err)

	_, err = te.SearchKnowledge(ctx, "developer tools", "", 5)
	require.NoError(t, err)

	got, err := te.store.EntityByName(ctx, "Acme")
	require.NoError(t, err)
	require.Equal(t, ent.ID, got.ID)
	require.Equal(t, 1, got.AccessCount)
	require.NotNil(t, got.AccessedAt)
}
