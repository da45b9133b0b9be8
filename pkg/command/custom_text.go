package command

import (
	"context"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/store"
)

// CustomTextWriteModel folds the custom text events of one instance for a
// single template and language.
type CustomTextWriteModel struct {
	domain.WriteModel

	Template string
	Language string
	Texts    map[string]string
}

func NewCustomTextWriteModel(instanceID, template, lang string) *CustomTextWriteModel {
	return &CustomTextWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: instanceID,
			InstanceID:  instanceID,
		},
		Template: template,
		Language: lang,
		Texts:    map[string]string{},
	}
}

func (wm *CustomTextWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case domain.CustomTextSetType:
			var payload domain.CustomTextSetPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.Template != wm.Template || payload.Language != wm.Language {
				continue
			}
			wm.Texts[payload.Key] = payload.Text
		case domain.CustomTextResetType:
			var payload domain.CustomTextResetPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.Template != wm.Template || payload.Language != wm.Language {
				continue
			}
			wm.Texts = map[string]string{}
		}
	}
	return wm.WriteModel.Reduce()
}

func (c *Commands) customTextWriteModel(ctx context.Context, instanceID, template, lang string) (*CustomTextWriteModel, error) {
	wm := NewCustomTextWriteModel(instanceID, template, lang)
	query := store.NewSearchQueryBuilder(domain.AggregateTypeInstance).
		InstanceID(instanceID).
		AggregateIDs(instanceID).
		EventTypes(domain.CustomTextSetType, domain.CustomTextResetType)
	if err := c.eventstore.FilterToReducer(ctx, query, wm); err != nil {
		return nil, err
	}
	return wm, nil
}

// SetCustomText overrides one key of a UI template for a language. The
// language tag is normalized to its base form.
func (c *Commands) SetCustomText(ctx context.Context, instanceID, template, key, lang, text string) (*domain.ObjectDetails, error) {
	if template == "" || key == "" {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-Text01a", "template or key is empty")
	}
	lang, err := validateLanguage(lang, "COMMAND-Text01b")
	if err != nil {
		return nil, err
	}

	if err := c.checkPermission(ctx, "text", "write", instanceID); err != nil {
		return nil, err
	}

	wm, err := c.customTextWriteModel(ctx, instanceID, template, lang)
	if err != nil {
		return nil, err
	}
	if current, ok := wm.Texts[key]; ok && current == text {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	err = c.pushAppendAndReduce(ctx, wm,
		instanceCommand(instanceID, creator(ctx), domain.CustomTextSetType,
			&domain.CustomTextSetPayload{
				Template: template,
				Key:      key,
				Language: lang,
				Text:     text,
			}),
	)
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// ResetCustomText drops every override of a template and language so the
// shipped defaults apply again.
func (c *Commands) ResetCustomText(ctx context.Context, instanceID, template, lang string) (*domain.ObjectDetails, error) {
	if template == "" {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-Text02a", "template is empty")
	}
	lang, err := validateLanguage(lang, "COMMAND-Text02b")
	if err != nil {
		return nil, err
	}

	wm, err := c.customTextWriteModel(ctx, instanceID, template, lang)
	if err != nil {
		return nil, err
	}
	if len(wm.Texts) == 0 {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Text02c", "no custom texts set")
	}

	if err := c.checkPermission(ctx, "text", "write", instanceID); err != nil {
		return nil, err
	}

	err = c.pushAppendAndReduce(ctx, wm,
		instanceCommand(instanceID, creator(ctx), domain.CustomTextResetType,
			&domain.CustomTextResetPayload{Template: template, Language: lang}),
	)
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// MessageTextWriteModel folds the message text events of one instance for a
// single message type and language.
type MessageTextWriteModel struct {
	domain.WriteModel

	MessageType string
	Language    string
	IsSet       bool
	Text        domain.MessageTextSetPayload
}

func NewMessageTextWriteModel(instanceID, messageType, lang string) *MessageTextWriteModel {
	return &MessageTextWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: instanceID,
			InstanceID:  instanceID,
		},
		MessageType: messageType,
		Language:    lang,
	}
}

func (wm *MessageTextWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case domain.MessageTextSetType:
			var payload domain.MessageTextSetPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.MessageType != wm.MessageType || payload.Language != wm.Language {
				continue
			}
			wm.IsSet = true
			wm.Text = payload
		case domain.MessageTextResetType:
			var payload domain.MessageTextResetPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.MessageType != wm.MessageType || payload.Language != wm.Language {
				continue
			}
			wm.IsSet = false
			wm.Text = domain.MessageTextSetPayload{}
		}
	}
	return wm.WriteModel.Reduce()
}

func (c *Commands) messageTextWriteModel(ctx context.Context, instanceID, messageType, lang string) (*MessageTextWriteModel, error) {
	wm := NewMessageTextWriteModel(instanceID, messageType, lang)
	query := store.NewSearchQueryBuilder(domain.AggregateTypeInstance).
		InstanceID(instanceID).
		AggregateIDs(instanceID).
		EventTypes(domain.MessageTextSetType, domain.MessageTextResetType)
	if err := c.eventstore.FilterToReducer(ctx, query, wm); err != nil {
		return nil, err
	}
	return wm, nil
}

// MessageTextRequest customizes one notification message template for a
// language.
type MessageTextRequest struct {
	MessageType string
	Language    string
	Title       string
	PreHeader   string
	Subject     string
	Greeting    string
	Text        string
	ButtonText  string
}

// SetMessageText overrides a notification message template. Writing an
// identical customization emits no event.
func (c *Commands) SetMessageText(ctx context.Context, instanceID string, req *MessageTextRequest) (*domain.ObjectDetails, error) {
	if req.MessageType == "" {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-Text03a", "message type is empty")
	}
	lang, err := validateLanguage(req.Language, "COMMAND-Text03b")
	if err != nil {
		return nil, err
	}

	if err := c.checkPermission(ctx, "text", "write", instanceID); err != nil {
		return nil, err
	}

	wm, err := c.messageTextWriteModel(ctx, instanceID, req.MessageType, lang)
	if err != nil {
		return nil, err
	}

	payload := domain.MessageTextSetPayload{
		MessageType: req.MessageType,
		Language:    lang,
		Title:       req.Title,
		PreHeader:   req.PreHeader,
		Subject:     req.Subject,
		Greeting:    req.Greeting,
		Text:        req.Text,
		ButtonText:  req.ButtonText,
	}
	if wm.IsSet && wm.Text == payload {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	err = c.pushAppendAndReduce(ctx, wm,
		instanceCommand(instanceID, creator(ctx), domain.MessageTextSetType, &payload))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// ResetMessageText drops a message template customization so the shipped
// default applies again.
func (c *Commands) ResetMessageText(ctx context.Context, instanceID, messageType, lang string) (*domain.ObjectDetails, error) {
	if messageType == "" {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-Text04a", "message type is empty")
	}
	lang, err := validateLanguage(lang, "COMMAND-Text04b")
	if err != nil {
		return nil, err
	}

	wm, err := c.messageTextWriteModel(ctx, instanceID, messageType, lang)
	if err != nil {
		return nil, err
	}
	if !wm.IsSet {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Text04c", "message text not customized")
	}

	if err := c.checkPermission(ctx, "text", "write", instanceID); err != nil {
		return nil, err
	}

	err = c.pushAppendAndReduce(ctx, wm,
		instanceCommand(instanceID, creator(ctx), domain.MessageTextResetType,
			&domain.MessageTextResetPayload{MessageType: messageType, Language: lang}),
	)
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}
