package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// callTool routes one tool invocation to its typed method. Every tool
// returns XML-tagged text; errors become isError content blocks upstream.
func (s *Server) callTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	switch name {
	case "record_event":
		var a RecordEventArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", err
		}
		return s.RecordEvent(ctx, a)
	case "search_events":
		var a SearchEventsArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", err
		}
		return s.SearchEvents(ctx, a)
	case "get_timeline":
		var a GetTimelineArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", err
		}
		return s.GetTimeline(ctx, a)
	case "get_event":
		var a GetEventArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", err
		}
		return s.GetEvent(ctx, a)
	case "update_core_memory":
		var a UpdateCoreMemoryArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", err
		}
		return s.UpdateCoreMemory(ctx, a)
	case "store_learning":
		var a StoreLearningArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", err
		}
		return s.StoreLearning(ctx, a)
	case "update_entity":
		var a UpdateEntityArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", err
		}
		return s.UpdateEntity(ctx, a)
	case "create_relation":
		var a CreateRelationArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", err
		}
		return s.CreateRelation(ctx, a)
	case "search_knowledge":
		var a SearchKnowledgeArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", err
		}
		return s.SearchKnowledge(ctx, a)
	case "recall":
		var a RecallArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", err
		}
		return s.Recall(ctx, a)
	case "reflect":
		var a ReflectArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", err
		}
		return s.Reflect(ctx, a)
	case "consolidate":
		var a ConsolidateArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", err
		}
		return s.Consolidate(ctx, a)
	case "memory_status":
		return s.MemoryStatus(ctx)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// decodeArgs round-trips tool arguments through JSON into a typed struct.
func decodeArgs(args map[string]interface{}, dest interface{}) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %v", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("invalid arguments: %v", err)
	}
	return nil
}

// orDefaultAgent substitutes the default agent for an empty agent_id.
func orDefaultAgent(agentID string) string {
	if agentID == "" {
		return engine.DefaultAgentID
	}
	return agentID
}

// parseTimeArg parses an optional RFC 3339 timestamp argument.
func parseTimeArg(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp, got %q", field, value)
	}
	return &t, nil
}

// RecordEvent appends an episodic event.
func (s *Server) RecordEvent(ctx context.Context, args RecordEventArgs) (string, error) {
	ev, err := s.engine.RecordEvent(ctx, engine.RecordEventInput{
		AgentID:    orDefaultAgent(args.AgentID),
		EventType:  types.EventType(args.EventType),
		Content:    args.Content,
		Importance: args.Importance,
		Entities:   args.Entities,
		Metadata:   args.Metadata,
	})
	if err != nil {
		return "", err
	}
	return renderEvent(ev), nil
}

// SearchEvents runs a hybrid episodic search.
func (s *Server) SearchEvents(ctx context.Context, args SearchEventsArgs) (string, error) {
	start, err := parseTimeArg("start_time", args.StartTime)
	if err != nil {
		return "", err
	}
	end, err := parseTimeArg("end_time", args.EndTime)
	if err != nil {
		return "", err
	}
	events, err := s.engine.SearchEvents(ctx, engine.SearchEventsInput{
		AgentID:   orDefaultAgent(args.AgentID),
		Query:     args.Query,
		EventType: types.EventType(args.EventType),
		Entities:  args.Entities,
		Start:     start,
		End:       end,
		Limit:     args.Limit,
	})
	if err != nil {
		return "", err
	}
	return renderEvents(events), nil
}

// GetTimeline lists events chronologically, newest first.
func (s *Server) GetTimeline(ctx context.Context, args GetTimelineArgs) (string, error) {
	start, err := parseTimeArg("start_time", args.StartTime)
	if err != nil {
		return "", err
	}
	end, err := parseTimeArg("end_time", args.EndTime)
	if err != nil {
		return "", err
	}
	events, err := s.engine.Timeline(ctx, storage.TimelineOptions{
		AgentID:   orDefaultAgent(args.AgentID),
		EventType: types.EventType(args.EventType),
		Start:     start,
		End:       end,
		Limit:     args.Limit,
	})
	if err != nil {
		return "", err
	}
	return renderEvents(events), nil
}

// GetEvent fetches a single event by id.
func (s *Server) GetEvent(ctx context.Context, args GetEventArgs) (string, error) {
	if args.ID == "" {
		return "", fmt.Errorf("id is required")
	}
	ev, err := s.engine.GetEvent(ctx, args.ID)
	if err != nil {
		return "", err
	}
	return renderEvent(ev), nil
}

// UpdateCoreMemory applies one append/replace/remove operation to a core
// memory block.
func (s *Server) UpdateCoreMemory(ctx context.Context, args UpdateCoreMemoryArgs) (string, error) {
	blk, err := s.engine.UpdateCoreMemory(ctx,
		types.BlockType(args.BlockType),
		args.BlockKey,
		types.CoreMemoryOp(args.Operation),
		args.Content,
	)
	if err != nil {
		return "", err
	}
	return renderCoreBlock(blk), nil
}

// StoreLearning records a distilled lesson as an observation event.
func (s *Server) StoreLearning(ctx context.Context, args StoreLearningArgs) (string, error) {
	ev, err := s.engine.StoreLearning(ctx, orDefaultAgent(args.AgentID), args.Content, args.Category)
	if err != nil {
		return "", err
	}
	return renderEvent(ev), nil
}

// UpdateEntity creates or merges a knowledge-graph entity.
func (s *Server) UpdateEntity(ctx context.Context, args UpdateEntityArgs) (string, error) {
	ent, err := s.engine.UpsertEntity(ctx, storage.EntityUpsert{
		Name:         args.Name,
		EntityType:   types.EntityType(args.EntityType),
		Observations: args.Observations,
		Summary:      args.Summary,
		Importance:   args.Importance,
	})
	if err != nil {
		return "", err
	}
	return renderEntity(ent), nil
}

// CreateRelation opens a relation between two named entities.
func (s *Server) CreateRelation(ctx context.Context, args CreateRelationArgs) (string, error) {
	rel, err := s.engine.CreateRelation(ctx, args.FromEntity, args.ToEntity, args.RelationType)
	if err != nil {
		return "", err
	}
	return renderRelation(rel), nil
}

// SearchKnowledge finds entities by vector similarity.
func (s *Server) SearchKnowledge(ctx context.Context, args SearchKnowledgeArgs) (string, error) {
	entities, err := s.engine.SearchKnowledge(ctx, args.Query, types.EntityType(args.EntityType), args.Limit)
	if err != nil {
		return "", err
	}
	return renderEntities(entities), nil
}

// Recall runs the scored cross-type retrieval.
func (s *Server) Recall(ctx context.Context, args RecallArgs) (string, error) {
	res, err := s.engine.Recall(ctx, engine.RecallInput{
		Query:       args.Query,
		Limit:       args.Limit,
		AgentID:     args.AgentID,
		ExcludeCore: args.IncludeCore != nil && !*args.IncludeCore,
	})
	if err != nil {
		return "", err
	}
	return renderRecall(res), nil
}

// Reflect synthesizes insights from unreflected events.
func (s *Server) Reflect(ctx context.Context, args ReflectArgs) (string, error) {
	reflections, err := s.engine.Reflect(ctx, args.AgentID, args.Force)
	if err != nil {
		return "", err
	}
	return renderReflections(reflections), nil
}

// Consolidate prunes observation lists and refreshes stale summaries.
func (s *Server) Consolidate(ctx context.Context, args ConsolidateArgs) (string, error) {
	res, err := s.engine.Consolidate(ctx, args.MaxAgeDays)
	if err != nil {
		return "", err
	}
	return renderConsolidation(res), nil
}

// MemoryStatus reports corpus counts and whether the LLM is wired up.
func (s *Server) MemoryStatus(ctx context.Context) (string, error) {
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		return "", err
	}
	return renderStatus(stats, s.engine.LLMEnabled()), nil
}

// buildToolsList returns the canonical list of tool definitions.
func buildToolsList() []MCPTool {
	return []MCPTool{
		{
			Name:        "record_event",
			Description: "Record an episodic event (something that happened). The event is timestamped, scored for importance, and indexed for semantic search.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"event_type", "content"},
				"properties": map[string]interface{}{
					"agent_id":   map[string]interface{}{"type": "string", "description": "Owning agent (default \"default\")"},
					"event_type": map[string]interface{}{"type": "string", "description": "One of: message, email, action, decision, observation, communication, file_change, error, milestone"},
					"content":    map[string]interface{}{"type": "string", "description": "What happened (required)"},
					"importance": map[string]interface{}{"type": "number", "description": "Importance override between 0 and 1; scored automatically when omitted"},
					"entities":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Names of entities mentioned in the event"},
					"metadata":   map[string]interface{}{"type": "object", "description": "Arbitrary key-value metadata"},
				},
			},
		},
		{
			Name:        "search_events",
			Description: "Search episodic events with a natural-language query. Vector similarity and full-text matches are merged; optional filters narrow by type, entities, or time window.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]interface{}{
					"agent_id":   map[string]interface{}{"type": "string", "description": "Owning agent (default \"default\")"},
					"query":      map[string]interface{}{"type": "string", "description": "Search query (required)"},
					"event_type": map[string]interface{}{"type": "string", "description": "Restrict to one event type"},
					"entities":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Keep only events mentioning any of these entities"},
					"start_time": map[string]interface{}{"type": "string", "description": "RFC 3339 lower bound for created_at"},
					"end_time":   map[string]interface{}{"type": "string", "description": "RFC 3339 upper bound for created_at"},
					"limit":      map[string]interface{}{"type": "integer", "description": "Max results (default 20)"},
				},
			},
		},
		{
			Name:        "get_timeline",
			Description: "List events chronologically, newest first, optionally bounded by a time window.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"agent_id":   map[string]interface{}{"type": "string", "description": "Owning agent (default \"default\")"},
					"event_type": map[string]interface{}{"type": "string", "description": "Restrict to one event type"},
					"start_time": map[string]interface{}{"type": "string", "description": "RFC 3339 lower bound for created_at"},
					"end_time":   map[string]interface{}{"type": "string", "description": "RFC 3339 upper bound for created_at"},
					"limit":      map[string]interface{}{"type": "integer", "description": "Max results (default 50, max 200)"},
				},
			},
		},
		{
			Name:        "get_event",
			Description: "Fetch a single event by its id.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]interface{}{
					"id": map[string]interface{}{"type": "string", "description": "Event ID (required)"},
				},
			},
		},
		{
			Name:        "update_core_memory",
			Description: "Edit an always-available core memory block. Append joins with a newline, replace overwrites, remove deletes the block. Blocks are capped at 5000 characters, keeping the beginning on overflow.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"block_type", "operation"},
				"properties": map[string]interface{}{
					"block_type": map[string]interface{}{"type": "string", "description": "\"persona\" or \"user_profile\""},
					"block_key":  map[string]interface{}{"type": "string", "description": "Block key (default \"default\")"},
					"operation":  map[string]interface{}{"type": "string", "description": "\"append\", \"replace\", or \"remove\""},
					"content":    map[string]interface{}{"type": "string", "description": "Block content; required for append and replace"},
				},
			},
		},
		{
			Name:        "store_learning",
			Description: "Store a distilled lesson or insight as an observation event, optionally tagged with a category.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"content"},
				"properties": map[string]interface{}{
					"agent_id": map[string]interface{}{"type": "string", "description": "Owning agent (default \"default\")"},
					"content":  map[string]interface{}{"type": "string", "description": "The lesson learned (required)"},
					"category": map[string]interface{}{"type": "string", "description": "Optional grouping label, e.g. \"golang\" or \"user_preferences\""},
				},
			},
		},
		{
			Name:        "update_entity",
			Description: "Create or update a knowledge-graph entity. New observations are merged in without duplicates; summary and importance are replaced when provided.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"name", "entity_type"},
				"properties": map[string]interface{}{
					"name":         map[string]interface{}{"type": "string", "description": "Entity name, unique per store (required)"},
					"entity_type":  map[string]interface{}{"type": "string", "description": "One of: person, project, concept, preference, tool, organization, location, topic"},
					"observations": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Facts to merge into the entity"},
					"summary":      map[string]interface{}{"type": "string", "description": "Replacement one-line summary"},
					"importance":   map[string]interface{}{"type": "number", "description": "Replacement importance between 0 and 1"},
				},
			},
		},
		{
			Name:        "create_relation",
			Description: "Create a directed relation between two existing entities, e.g. Alice works_at Acme. Re-creating the same triple closes the previous row and opens a fresh one.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"from_entity", "to_entity", "relation_type"},
				"properties": map[string]interface{}{
					"from_entity":   map[string]interface{}{"type": "string", "description": "Source entity name (required)"},
					"to_entity":     map[string]interface{}{"type": "string", "description": "Target entity name (required)"},
					"relation_type": map[string]interface{}{"type": "string", "description": "Relation label, e.g. \"works_at\" (required)"},
				},
			},
		},
		{
			Name:        "search_knowledge",
			Description: "Search knowledge-graph entities by semantic similarity.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]interface{}{
					"query":       map[string]interface{}{"type": "string", "description": "Search query (required)"},
					"entity_type": map[string]interface{}{"type": "string", "description": "Restrict to one entity type"},
					"limit":       map[string]interface{}{"type": "integer", "description": "Max results (default 20)"},
				},
			},
		},
		{
			Name:        "recall",
			Description: "Retrieve the most relevant memories across events, entities, and reflections, ranked by a blend of recency, importance, and similarity. Core memory blocks are attached unless include_core is false.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]interface{}{
					"query":        map[string]interface{}{"type": "string", "description": "Search query (required)"},
					"limit":        map[string]interface{}{"type": "integer", "description": "Max results (default 20, max 50)"},
					"agent_id":     map[string]interface{}{"type": "string", "description": "Keep only event memories owned by this agent; omit to search all"},
					"include_core": map[string]interface{}{"type": "boolean", "description": "Attach core memory blocks to the response (default true)"},
				},
			},
		},
		{
			Name:        "reflect",
			Description: "Synthesize higher-level insights from recent unreflected events. Runs only when accumulated importance crosses the threshold unless force is set. Requires the LLM to be configured.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"agent_id": map[string]interface{}{"type": "string", "description": "Agent to reflect for (default \"default\")"},
					"force":    map[string]interface{}{"type": "boolean", "description": "Run even when the importance threshold is not met"},
				},
			},
		},
		{
			Name:        "consolidate",
			Description: "Compact the knowledge graph: trim entity observation lists to the most recent 20 and refresh stale entity summaries when the LLM is configured.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"max_age_days": map[string]interface{}{"type": "integer", "description": "Accepted for compatibility; age-based pruning is not implemented"},
				},
			},
		},
		{
			Name:        "memory_status",
			Description: "Report how many events, entities, relations, reflections, core blocks, and vectors are stored.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}
