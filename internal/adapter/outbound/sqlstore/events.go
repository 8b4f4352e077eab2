package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelwatch/sentinelwatch/internal/adapter/inbound/llmproxy"
	"github.com/sentinelwatch/sentinelwatch/internal/domain/threat"
	"github.com/sentinelwatch/sentinelwatch/internal/domain/toolcall"
)

// EventRepository implements llmproxy.EventRecorder and the read-side
// queries the local HTTP server's threat-analytics endpoints need.
type EventRepository struct {
	store *Store
}

// NewEventRepository wraps a Store as an llmproxy.EventRecorder.
func NewEventRepository(store *Store) *EventRepository {
	return &EventRepository{store: store}
}

var _ llmproxy.EventRecorder = (*EventRepository)(nil)

// RecordEvent persists one analyzed proxy call.
func (r *EventRepository) RecordEvent(ctx context.Context, ev llmproxy.Event) error {
	matchedRules, err := json.Marshal(ev.MatchedRules)
	if err != nil {
		return err
	}
	toolDecisions, err := json.Marshal(ev.ToolDecisions)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return err
	}

	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	var requestID interface{}
	if ev.RequestID != nil {
		requestID = *ev.RequestID
	}

	var reviewAgreement, reviewRiskAdjustment interface{}
	var reviewConfidence interface{}
	var reviewExplanation, reviewModelUsed interface{}
	if ev.Review != nil {
		reviewAgreement = ev.Review.Agreement
		reviewConfidence = ev.Review.Confidence
		reviewExplanation = nullableString(ev.Review.Explanation)
		reviewRiskAdjustment = ev.Review.RiskAdjustment
		reviewModelUsed = nullableString(ev.Review.ModelUsed)
	}

	_, err = r.store.DB().ExecContext(ctx, `
		INSERT INTO events (
			id, agent_id, provider, path, is_threat, threat_type, risk_score,
			confidence, matched_rules, tool_decisions, upstream_status,
			error_metadata, source, request_id, text_content, content_digest,
			text_length, session_label, processing_time_ms, metadata,
			review_agreement, review_confidence, review_explanation,
			review_risk_adjustment, review_model_used, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), ev.AgentID, ev.Provider, ev.Path, ev.IsThreat, nullableString(ev.ThreatType),
		ev.RiskScore, ev.Confidence, string(matchedRules), string(toolDecisions), ev.UpstreamStatus,
		nullableString(ev.ErrorMetadata), ev.Source, requestID, nullableString(ev.TextContent),
		nullableString(ev.ContentDigest), ev.TextLength, nullableString(ev.SessionLabel),
		ev.ProcessingTimeMS, string(metadata), reviewAgreement, reviewConfidence, reviewExplanation,
		reviewRiskAdjustment, reviewModelUsed, occurredAt.UTC(),
	)
	return err
}

// ReviewRecord is the optional secondary-assessment sub-entity attached
// to an event, mirroring llmproxy.Review.
type ReviewRecord struct {
	Agreement      bool    `json:"agreement"`
	Confidence     float64 `json:"confidence"`
	Explanation    string  `json:"explanation,omitempty"`
	RiskAdjustment int     `json:"risk_adjustment"`
	ModelUsed      string  `json:"model_used,omitempty"`
}

// EventRecord is one row returned by the timeline query endpoints.
type EventRecord struct {
	ID               string               `json:"id"`
	AgentID          string               `json:"agent_id"`
	Provider         string               `json:"provider"`
	Path             string               `json:"path"`
	IsThreat         bool                 `json:"is_threat"`
	ThreatType       string               `json:"threat_type,omitempty"`
	RiskScore        int                  `json:"risk_score"`
	Confidence       float64              `json:"confidence"`
	MatchedRules     []threat.MatchedRule `json:"matched_rules"`
	ToolDecisions    []toolcall.Decision  `json:"tool_decisions"`
	UpstreamStatus   int                  `json:"upstream_status"`
	ErrorMetadata    string               `json:"error_metadata,omitempty"`
	Source           string               `json:"source"`
	RequestID        string               `json:"request_id,omitempty"`
	TextContent      string               `json:"text_content,omitempty"`
	ContentDigest    string               `json:"content_digest,omitempty"`
	TextLength       int                  `json:"text_length"`
	SessionLabel     string               `json:"session_label,omitempty"`
	ProcessingTimeMS int64                `json:"processing_time_ms"`
	Metadata         map[string]string    `json:"metadata,omitempty"`
	Review           *ReviewRecord        `json:"review,omitempty"`
	OccurredAt       time.Time            `json:"occurred_at"`
}

// eventColumns is the column list shared by every SELECT against events,
// so List/ListPage/GetByID stay in lockstep with scanEventRow.
const eventColumns = `id, agent_id, provider, path, is_threat, threat_type, risk_score,
	confidence, matched_rules, tool_decisions, upstream_status, error_metadata, source,
	request_id, text_content, content_digest, text_length, session_label,
	processing_time_ms, metadata, review_agreement, review_confidence,
	review_explanation, review_risk_adjustment, review_model_used, occurred_at`

// scanEventRow scans one events row (in eventColumns order) into rec.
func scanEventRow(scan func(...interface{}) error) (EventRecord, error) {
	var rec EventRecord
	var threatType, errMeta, requestID, textContent, contentDigest, sessionLabel sql.NullString
	var reviewExplanation, reviewModelUsed sql.NullString
	var reviewAgreement sql.NullBool
	var reviewConfidence sql.NullFloat64
	var reviewRiskAdjustment sql.NullInt64
	var matchedRulesJSON, toolDecisionsJSON, metadataJSON string

	err := scan(&rec.ID, &rec.AgentID, &rec.Provider, &rec.Path, &rec.IsThreat,
		&threatType, &rec.RiskScore, &rec.Confidence, &matchedRulesJSON, &toolDecisionsJSON,
		&rec.UpstreamStatus, &errMeta, &rec.Source, &requestID, &textContent, &contentDigest,
		&rec.TextLength, &sessionLabel, &rec.ProcessingTimeMS, &metadataJSON,
		&reviewAgreement, &reviewConfidence, &reviewExplanation, &reviewRiskAdjustment,
		&reviewModelUsed, &rec.OccurredAt)
	if err != nil {
		return EventRecord{}, err
	}

	rec.ThreatType = threatType.String
	rec.ErrorMetadata = errMeta.String
	rec.RequestID = requestID.String
	rec.TextContent = textContent.String
	rec.ContentDigest = contentDigest.String
	rec.SessionLabel = sessionLabel.String
	_ = json.Unmarshal([]byte(matchedRulesJSON), &rec.MatchedRules)
	_ = json.Unmarshal([]byte(toolDecisionsJSON), &rec.ToolDecisions)
	_ = json.Unmarshal([]byte(metadataJSON), &rec.Metadata)

	if reviewAgreement.Valid {
		rec.Review = &ReviewRecord{
			Agreement:      reviewAgreement.Bool,
			Confidence:     reviewConfidence.Float64,
			Explanation:    reviewExplanation.String,
			RiskAdjustment: int(reviewRiskAdjustment.Int64),
			ModelUsed:      reviewModelUsed.String,
		}
	}
	return rec, nil
}

// ListFilter narrows a timeline query; zero values are unfiltered.
type ListFilter struct {
	AgentID    string
	IsThreat   *bool
	ThreatType string
	Limit      int
	Offset     int
}

// List returns events newest-first, applying ListFilter's non-zero fields.
func (r *EventRepository) List(ctx context.Context, filter ListFilter) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	var args []interface{}

	if filter.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, filter.AgentID)
	}
	if filter.IsThreat != nil {
		query += ` AND is_threat = ?`
		args = append(args, *filter.IsThreat)
	}
	if filter.ThreatType != "" {
		query += ` AND threat_type = ?`
		args = append(args, filter.ThreatType)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += ` ORDER BY occurred_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := r.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		rec, err := scanEventRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the total number of events ever recorded, used for the
// health endpoint's database.record_count field.
func (r *EventRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	return count, err
}

// CountThreatsSince returns how many threat events were recorded at or
// after the given time, used for analytics summaries.
func (r *EventRepository) CountThreatsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE is_threat = 1 AND occurred_at >= ?`, since.UTC(),
	).Scan(&count)
	return count, err
}

// EventSortColumns is the allowlist of indexed columns the threat-intel
// endpoint may sort by (spec: "sort field must be an indexed column").
var EventSortColumns = map[string]bool{
	"occurred_at": true,
	"agent_id":    true,
	"is_threat":   true,
	"threat_type": true,
}

// PageFilter narrows and orders a paginated threat-intel query.
type PageFilter struct {
	IsThreat   *bool
	ThreatType string
	Source     string
	StartDate  *time.Time
	EndDate    *time.Time
	Sort       string // must be a key of EventSortColumns; defaults to occurred_at
	Order      string // "asc" or "desc"; defaults to desc
	Page       int    // 1-based
	PageSize   int
}

// ListPage returns one page of events plus the total row count matching
// filter, for the GET /api/threat-intel endpoint's {items, total, page,
// page_size, total_pages} response shape.
func (r *EventRepository) ListPage(ctx context.Context, filter PageFilter) ([]EventRecord, int, error) {
	where := `WHERE 1=1`
	var args []interface{}

	if filter.IsThreat != nil {
		where += ` AND is_threat = ?`
		args = append(args, *filter.IsThreat)
	}
	if filter.ThreatType != "" {
		where += ` AND threat_type = ?`
		args = append(args, filter.ThreatType)
	}
	if filter.Source != "" {
		where += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.StartDate != nil {
		where += ` AND occurred_at >= ?`
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		where += ` AND occurred_at <= ?`
		args = append(args, filter.EndDate.UTC())
	}

	var total int
	if err := r.store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM events `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortCol := filter.Sort
	if sortCol == "" || !EventSortColumns[sortCol] {
		sortCol = "occurred_at"
	}
	order := "DESC"
	if filter.Order == "asc" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := `SELECT ` + eventColumns + ` FROM events ` + where + ` ORDER BY ` + sortCol + ` ` + order + ` LIMIT ? OFFSET ?`
	args = append(args, pageSize, offset)

	rows, err := r.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		rec, err := scanEventRow(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// GetByID returns a single event by its id, or sql.ErrNoRows if absent.
func (r *EventRepository) GetByID(ctx context.Context, id string) (EventRecord, error) {
	row := r.store.DB().QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEventRow(row.Scan)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
