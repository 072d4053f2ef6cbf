package store

// Instance represents one provider-side messaging session binding.
type Instance struct {
	Name      string
	BaseURL   string
	APIKey    string
	Status    string
	CreatedAt int64
	UpdatedAt int64
}

// Contact represents a synced address book entry scoped to an instance.
type Contact struct {
	Instance   string
	WaID       string
	Name       string
	PushName   string
	IsBusiness bool
	AvatarURL  string
}

// Chat represents a conversation thread scoped to an instance.
type Chat struct {
	Instance           string
	ChatID             string
	Name               string
	IsGroup            bool
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
	LastMessageSender  string
}

// Message represents a single inbound or outbound message event.
type Message struct {
	ID          int64
	Instance    string
	MsgID       string
	ChatID      string
	Sender      string
	SenderName  string
	SenderType  string // client, support, ai
	Body        string
	MessageType string // text, image, video, audio, document, sticker
	FromMe      bool
	Status      string
	Timestamp   int64
	RawPayload  string
}
