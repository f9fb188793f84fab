package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEventType(t *testing.T) {
	for _, et := range ValidEventTypes {
		assert.True(t, IsValidEventType(et), "expected %q to be valid", et)
	}
	assert.False(t, IsValidEventType("meeting"))
	assert.False(t, IsValidEventType(""))
}

func TestIsValidEntityType(t *testing.T) {
	for _, et := range ValidEntityTypes {
		assert.True(t, IsValidEntityType(et), "expected %q to be valid", et)
	}
	assert.False(t, IsValidEntityType("animal"))
}

func TestIsValidMemoryType(t *testing.T) {
	assert.True(t, IsValidMemoryType(MemoryTypeEvent))
	assert.True(t, IsValidMemoryType(MemoryTypeEntity))
	assert.True(t, IsValidMemoryType(MemoryTypeReflection))
	assert.False(t, IsValidMemoryType("task"))
}

func TestEventValidate(t *testing.T) {
	valid := Event{
		AgentID:   "agent-1",
		EventType: EventTypeObservation,
		Content:   "User prefers dark mode",
	}
	assert.NoError(t, valid.Validate())

	noAgent := valid
	noAgent.AgentID = ""
	assert.Error(t, noAgent.Validate())

	longAgent := valid
	longAgent.AgentID = strings.Repeat("a", MaxAgentIDLength+1)
	assert.Error(t, longAgent.Validate())

	noContent := valid
	noContent.Content = ""
	assert.Error(t, noContent.Validate())

	longContent := valid
	longContent.Content = strings.Repeat("x", MaxContentLength+1)
	assert.Error(t, longContent.Validate())

	badType := valid
	badType.EventType = "party"
	assert.Error(t, badType.Validate())
}

func TestEntityValidate(t *testing.T) {
	valid := Entity{Name: "Alice", EntityType: EntityTypePerson}
	assert.NoError(t, valid.Validate())

	noName := valid
	noName.Name = ""
	assert.Error(t, noName.Validate())

	badType := valid
	badType.EntityType = "robot"
	assert.Error(t, badType.Validate())
}

func TestEntityEmbeddingText(t *testing.T) {
	summary := "Works on the search team"
	e := Entity{
		Name:         "Alice",
		EntityType:   EntityTypePerson,
		Summary:      &summary,
		Observations: []string{"Fact 1", "Fact 2"},
	}
	assert.Equal(t, "Alice Works on the search team Fact 1 Fact 2", e.EmbeddingText())

	bare := Entity{Name: "Acme", EntityType: EntityTypeOrganization}
	assert.Equal(t, "Acme", bare.EmbeddingText())
}

func TestClampImportance(t *testing.T) {
	assert.Equal(t, 0.0, ClampImportance(-0.5))
	assert.Equal(t, 1.0, ClampImportance(1.5))
	assert.Equal(t, 0.5, ClampImportance(0.5))
}

func TestRelationActive(t *testing.T) {
	r := Relation{}
	assert.True(t, r.Active())

	now := r.CreatedAt
	r.ValidUntil = &now
	assert.False(t, r.Active())
}
