package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/identra/identra/pkg/domain"
)

const (
	CustomTextsTable  = "projections_custom_texts"
	MessageTextsTable = "projections_message_texts"
)

const createCustomTextsTable = `
CREATE TABLE IF NOT EXISTS projections_custom_texts (
	instance_id TEXT NOT NULL,
	template    TEXT NOT NULL,
	key         TEXT NOT NULL,
	language    TEXT NOT NULL,
	text        TEXT NOT NULL,
	changed_at  INTEGER NOT NULL,
	PRIMARY KEY (instance_id, template, key, language)
);
`

type customTextsHandler struct{}

// NewCustomTextsHandler projects UI text overrides.
func NewCustomTextsHandler() Handler {
	return &customTextsHandler{}
}

func (*customTextsHandler) Name() string { return "custom_texts" }

func (*customTextsHandler) Tables() []string { return []string{CustomTextsTable} }

func (*customTextsHandler) Requires() []string { return nil }

func (*customTextsHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createCustomTextsTable); err != nil {
		return fmt.Errorf("failed to create custom texts projection table: %w", err)
	}
	return nil
}

func (h *customTextsHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{{
		Aggregate: domain.AggregateTypeInstance,
		Reducers: map[domain.EventType]Reduce{
			domain.CustomTextSetType:   h.reduceSet,
			domain.CustomTextResetType: h.reduceReset,
		},
	}}
}

func (*customTextsHandler) reduceSet(event *domain.Event) (*Statement, error) {
	var payload domain.CustomTextSetPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpsertStatement(CustomTextsTable,
		[]string{"instance_id", "template", "key", "language"},
		[]Column{
			Col("instance_id", event.InstanceID),
			Col("template", payload.Template),
			Col("key", payload.Key),
			Col("language", payload.Language),
			Col("text", payload.Text),
			Col("changed_at", event.CreatedAt.UnixMicro()),
		},
	), nil
}

func (*customTextsHandler) reduceReset(event *domain.Event) (*Statement, error) {
	var payload domain.CustomTextResetPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewDeleteStatement(CustomTextsTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("template", payload.Template),
			Cond("language", payload.Language),
		},
	), nil
}

const createMessageTextsTable = `
CREATE TABLE IF NOT EXISTS projections_message_texts (
	instance_id  TEXT NOT NULL,
	message_type TEXT NOT NULL,
	language     TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	pre_header   TEXT NOT NULL DEFAULT '',
	subject      TEXT NOT NULL DEFAULT '',
	greeting     TEXT NOT NULL DEFAULT '',
	text         TEXT NOT NULL DEFAULT '',
	button_text  TEXT NOT NULL DEFAULT '',
	changed_at   INTEGER NOT NULL,
	PRIMARY KEY (instance_id, message_type, language)
);
`

type messageTextsHandler struct{}

// NewMessageTextsHandler projects notification message customizations.
func NewMessageTextsHandler() Handler {
	return &messageTextsHandler{}
}

func (*messageTextsHandler) Name() string { return "message_texts" }

func (*messageTextsHandler) Tables() []string { return []string{MessageTextsTable} }

func (*messageTextsHandler) Requires() []string { return nil }

func (*messageTextsHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createMessageTextsTable); err != nil {
		return fmt.Errorf("failed to create message texts projection table: %w", err)
	}
	return nil
}

func (h *messageTextsHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{{
		Aggregate: domain.AggregateTypeInstance,
		Reducers: map[domain.EventType]Reduce{
			domain.MessageTextSetType:   h.reduceSet,
			domain.MessageTextResetType: h.reduceReset,
		},
	}}
}

func (*messageTextsHandler) reduceSet(event *domain.Event) (*Statement, error) {
	var payload domain.MessageTextSetPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpsertStatement(MessageTextsTable,
		[]string{"instance_id", "message_type", "language"},
		[]Column{
			Col("instance_id", event.InstanceID),
			Col("message_type", payload.MessageType),
			Col("language", payload.Language),
			Col("title", payload.Title),
			Col("pre_header", payload.PreHeader),
			Col("subject", payload.Subject),
			Col("greeting", payload.Greeting),
			Col("text", payload.Text),
			Col("button_text", payload.ButtonText),
			Col("changed_at", event.CreatedAt.UnixMicro()),
		},
	), nil
}

func (*messageTextsHandler) reduceReset(event *domain.Event) (*Statement, error) {
	var payload domain.MessageTextResetPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewDeleteStatement(MessageTextsTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("message_type", payload.MessageType),
			Cond("language", payload.Language),
		},
	), nil
}
