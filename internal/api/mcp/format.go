package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/pkg/types"
)

// Tool results are XML-tagged text rather than JSON: model-facing output
// reads better with explicit structure, and escaping keeps arbitrary user
// content from breaking the enclosing tags.

// xmlEscaper escapes the five XML-special characters.
var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escape(s string) string {
	return xmlEscaper.Replace(s)
}

// renderEvent renders a single event with its content, entities, and
// metadata, so a fetch returns every field the write accepted.
func renderEvent(ev *types.Event) string {
	var b strings.Builder
	writeEvent(&b, ev, "")
	return b.String()
}

func writeEvent(b *strings.Builder, ev *types.Event, indent string) {
	fmt.Fprintf(b, "%s<event id=\"%s\" agent_id=\"%s\" event_type=\"%s\" importance=\"%.2f\" created_at=\"%s\">\n",
		indent, ev.ID, escape(ev.AgentID), ev.EventType, ev.Importance, types.FormatTimestamp(ev.CreatedAt))
	fmt.Fprintf(b, "%s  <content>%s</content>\n", indent, escape(ev.Content))
	if len(ev.Entities) > 0 {
		fmt.Fprintf(b, "%s  <entities>%s</entities>\n", indent, escape(strings.Join(ev.Entities, ", ")))
	}
	if len(ev.Metadata) > 0 {
		if data, err := json.Marshal(ev.Metadata); err == nil {
			fmt.Fprintf(b, "%s  <metadata>%s</metadata>\n", indent, escape(string(data)))
		}
	}
	fmt.Fprintf(b, "%s</event>", indent)
}

func renderEvents(events []*types.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<events count=\"%d\">", len(events))
	for _, ev := range events {
		b.WriteString("\n")
		writeEvent(&b, ev, "  ")
	}
	if len(events) > 0 {
		b.WriteString("\n")
	}
	b.WriteString("</events>")
	return b.String()
}

// renderCoreBlock reports the post-operation block state. chars counts
// runes, matching the 5000-character block cap.
func renderCoreBlock(blk *types.CoreMemoryBlock) string {
	return fmt.Sprintf("<core_memory block_type=\"%s\" block_key=\"%s\" chars=\"%d\">%s</core_memory>",
		blk.BlockType, escape(blk.BlockKey), utf8.RuneCountInString(blk.Content), escape(blk.Content))
}

func renderEntity(ent *types.Entity) string {
	var b strings.Builder
	writeEntity(&b, ent, "")
	return b.String()
}

func writeEntity(b *strings.Builder, ent *types.Entity, indent string) {
	fmt.Fprintf(b, "%s<entity id=\"%s\" name=\"%s\" entity_type=\"%s\" importance=\"%.2f\" updated_at=\"%s\">\n",
		indent, ent.ID, escape(ent.Name), ent.EntityType, ent.Importance, types.FormatTimestamp(ent.UpdatedAt))
	if ent.Summary != nil && *ent.Summary != "" {
		fmt.Fprintf(b, "%s  <summary>%s</summary>\n", indent, escape(*ent.Summary))
	}
	for _, obs := range ent.Observations {
		fmt.Fprintf(b, "%s  <observation>%s</observation>\n", indent, escape(obs))
	}
	fmt.Fprintf(b, "%s</entity>", indent)
}

func renderEntities(entities []*types.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<entities count=\"%d\">", len(entities))
	for _, ent := range entities {
		b.WriteString("\n")
		writeEntity(&b, ent, "  ")
	}
	if len(entities) > 0 {
		b.WriteString("\n")
	}
	b.WriteString("</entities>")
	return b.String()
}

func renderRelation(rel *types.Relation) string {
	return fmt.Sprintf("<relation id=\"%s\" from=\"%s\" to=\"%s\" relation_type=\"%s\" valid_from=\"%s\"/>",
		rel.ID, escape(rel.FromEntity), escape(rel.ToEntity), escape(rel.RelationType), types.FormatTimestamp(rel.ValidFrom))
}

func renderReflections(reflections []*types.Reflection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<reflections count=\"%d\">", len(reflections))
	for _, r := range reflections {
		b.WriteString("\n")
		fmt.Fprintf(&b, "  <reflection id=\"%s\" importance=\"%.2f\" depth=\"%d\" source_count=\"%d\" created_at=\"%s\">%s</reflection>",
			r.ID, r.Importance, r.Depth, len(r.SourceIDs), types.FormatTimestamp(r.CreatedAt), escape(r.Content))
	}
	if len(reflections) > 0 {
		b.WriteString("\n")
	}
	b.WriteString("</reflections>")
	return b.String()
}

func renderRecall(res *types.RecallResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<recall total_searched=\"%d\">\n", res.TotalSearched)
	if len(res.CoreMemory) > 0 {
		b.WriteString("  <core_memory>\n")
		for _, blk := range res.CoreMemory {
			fmt.Fprintf(&b, "    <block block_type=\"%s\" block_key=\"%s\">%s</block>\n",
				blk.BlockType, escape(blk.BlockKey), escape(blk.Content))
		}
		b.WriteString("  </core_memory>\n")
	}
	fmt.Fprintf(&b, "  <memories count=\"%d\">\n", len(res.Memories))
	for _, m := range res.Memories {
		fmt.Fprintf(&b, "    <memory id=\"%s\" memory_type=\"%s\" score=\"%.3f\" recency=\"%.3f\" importance=\"%.3f\" relevance=\"%.3f\" created_at=\"%s\">%s</memory>\n",
			m.ID, m.MemoryType, m.Score, m.Recency, m.Importance, m.Relevance, types.FormatTimestamp(m.CreatedAt), escape(m.Content))
	}
	b.WriteString("  </memories>\n")
	b.WriteString("</recall>")
	return b.String()
}

func renderConsolidation(res *engine.ConsolidationResult) string {
	return fmt.Sprintf("<consolidation entities_updated=\"%d\" observations_pruned=\"%d\" summaries_refreshed=\"%d\"/>",
		res.EntitiesUpdated, res.ObservationsPruned, res.SummariesRefreshed)
}

func renderStatus(stats *types.MemoryStats, llmEnabled bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<memory_status llm_enabled=\"%t\">\n", llmEnabled)
	fmt.Fprintf(&b, "  <events>%d</events>\n", stats.EventCount)
	fmt.Fprintf(&b, "  <entities>%d</entities>\n", stats.EntityCount)
	fmt.Fprintf(&b, "  <relations total=\"%d\" active=\"%d\"/>\n", stats.RelationCount, stats.ActiveRelationCount)
	fmt.Fprintf(&b, "  <reflections>%d</reflections>\n", stats.ReflectionCount)
	fmt.Fprintf(&b, "  <core_blocks>%d</core_blocks>\n", stats.CoreBlockCount)
	fmt.Fprintf(&b, "  <vectors>%d</vectors>\n", stats.VectorCount)
	if stats.OldestEvent != nil {
		fmt.Fprintf(&b, "  <oldest_event>%s</oldest_event>\n", types.FormatTimestamp(*stats.OldestEvent))
	}
	if stats.NewestEvent != nil {
		fmt.Fprintf(&b, "  <newest_event>%s</newest_event>\n", types.FormatTimestamp(*stats.NewestEvent))
	}
	b.WriteString("</memory_status>")
	return b.String()
}
