package domain

// Custom text and message text event types (instance aggregate).
const (
	CustomTextSetType   EventType = "instance.customtext.set"
	CustomTextResetType EventType = "instance.customtext.reset"

	MessageTextSetType   EventType = "instance.message.text.set"
	MessageTextResetType EventType = "instance.message.text.reset"
)

type CustomTextSetPayload struct {
	Template string `json:"template"`
	Key      string `json:"key"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

type CustomTextResetPayload struct {
	Template string `json:"template"`
	Language string `json:"language"`
}

// MessageTextSetPayload customizes one notification message template
// (e.g. "InitCode", "PasswordReset") for a language.
type MessageTextSetPayload struct {
	MessageType string `json:"messageType"`
	Language    string `json:"language"`
	Title       string `json:"title,omitempty"`
	PreHeader   string `json:"preHeader,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Greeting    string `json:"greeting,omitempty"`
	Text        string `json:"text,omitempty"`
	ButtonText  string `json:"buttonText,omitempty"`
}

type MessageTextResetPayload struct {
	MessageType string `json:"messageType"`
	Language    string `json:"language"`
}
