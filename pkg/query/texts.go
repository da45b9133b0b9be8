package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/projection"
)

// CustomTexts returns the overrides of one template and language as a
// key/text map. An empty map means no overrides.
func (q *Queries) CustomTexts(ctx context.Context, instanceID, template, language string) (map[string]string, error) {
	rows, err := q.db.QueryContext(ctx,
		fmt.Sprintf("SELECT key, text FROM %s WHERE instance_id = ? AND template = ? AND language = ?", projection.CustomTextsTable),
		instanceID, template, language)
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Text01", "failed to query custom texts")
	}
	defer rows.Close()

	texts := map[string]string{}
	for rows.Next() {
		var key, text string
		if err := rows.Scan(&key, &text); err != nil {
			return nil, errs.ThrowStorage(err, "QUERY-Text02", "failed to scan custom text")
		}
		texts[key] = text
	}
	return texts, rows.Err()
}

// MessageText is one customized notification template.
type MessageText struct {
	InstanceID  string
	MessageType string
	Language    string
	Title       string
	PreHeader   string
	Subject     string
	Greeting    string
	Text        string
	ButtonText  string
	ChangedAt   time.Time
}

// MessageTextByTypeAndLanguage returns one customization or NotFound.
func (q *Queries) MessageTextByTypeAndLanguage(ctx context.Context, instanceID, messageType, language string) (*MessageText, error) {
	t := &MessageText{}
	var changedAt int64
	err := q.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT instance_id, message_type, language, title, pre_header, subject, greeting, text, button_text, changed_at
			FROM %s WHERE instance_id = ? AND message_type = ? AND language = ?`, projection.MessageTextsTable),
		instanceID, messageType, language).
		Scan(&t.InstanceID, &t.MessageType, &t.Language, &t.Title, &t.PreHeader, &t.Subject, &t.Greeting, &t.Text, &t.ButtonText, &changedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ThrowNotFound(err, "QUERY-Text03", "message text not found")
	}
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Text04", "failed to query message text")
	}
	t.ChangedAt = microTime(changedAt)
	return t, nil
}
