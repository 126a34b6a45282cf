package domain

// Role identifies a conversation participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Attachment references a file held in the bucket. DIAL core converts it into
// whatever content part the target vendor expects.
type Attachment struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Type  string `json:"type"` // MIME type as declared by the uploader
}

func NewAttachment(title, url, mimeType string) Attachment {
	return Attachment{Title: title, URL: url, Type: mimeType}
}

type CustomContent struct {
	Attachments []Attachment `json:"attachments"`
}

type Message struct {
	Role          Role           `json:"role"`
	Content       string         `json:"content"`
	CustomContent *CustomContent `json:"custom_content,omitempty"`
}

// NewUserMessage builds a user turn carrying the given attachments in order.
// The slice is copied so later changes by the caller do not leak into the message.
func NewUserMessage(content string, attachments ...Attachment) Message {
	msg := Message{Role: RoleUser, Content: content}
	if len(attachments) > 0 {
		atts := make([]Attachment, len(attachments))
		copy(atts, attachments)
		msg.CustomContent = &CustomContent{Attachments: atts}
	}
	return msg
}

// Attachments returns the message attachments, or nil when there are none.
func (m Message) Attachments() []Attachment {
	if m.CustomContent == nil {
		return nil
	}
	return m.CustomContent.Attachments
}
