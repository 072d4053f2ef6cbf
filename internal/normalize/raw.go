// Package normalize maps loosely-typed provider payloads into canonical
// store entities. All shape-guessing over aliased and optional fields lives
// here; no other package branches on raw payload shape.
package normalize

// RawContact is a provider contact payload. The id may arrive under either
// alias depending on the endpoint.
type RawContact struct {
	ID            string `json:"id"`
	RemoteJid     string `json:"remoteJid"`
	Name          string `json:"name"`
	Notify        string `json:"notify"`
	PushName      string `json:"pushName"`
	IsBusiness    bool   `json:"isBusiness"`
	ProfilePicURL string `json:"profilePicUrl"`
}

// RawChat is a provider chat listing entry.
type RawChat struct {
	ID                   string      `json:"id"`
	Jid                  string      `json:"jid"`
	Name                 string      `json:"name"`
	PushName             string      `json:"pushName"`
	IsGroup              bool        `json:"isGroup"`
	UnreadCount          int         `json:"unreadCount"`
	UnreadMessages       int         `json:"unreadMessages"`
	LastMessage          *RawMessage `json:"lastMessage"`
	LastMessageTimestamp int64       `json:"lastMessageTimestamp"`
}

// RawMessage is a provider message payload, shared by webhook deliveries
// and findMessages responses.
type RawMessage struct {
	Key              RawMessageKey      `json:"key"`
	PushName         string             `json:"pushName"`
	Message          *RawMessageContent `json:"message"`
	MessageType      string             `json:"messageType"`
	MessageTimestamp int64              `json:"messageTimestamp"`
	Status           string             `json:"status"`
}

// RawMessageKey identifies a message and its chat.
type RawMessageKey struct {
	ID          string `json:"id"`
	RemoteJid   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	Participant string `json:"participant"`
}

// RawMessageContent holds the per-kind message bodies. Exactly one branch
// is normally present; redelivered payloads may be partial.
type RawMessageContent struct {
	Conversation        string       `json:"conversation"`
	ExtendedTextMessage *RawExtText  `json:"extendedTextMessage"`
	ImageMessage        *RawMedia    `json:"imageMessage"`
	VideoMessage        *RawMedia    `json:"videoMessage"`
	AudioMessage        *RawMedia    `json:"audioMessage"`
	DocumentMessage     *RawDocument `json:"documentMessage"`
	StickerMessage      *RawSticker  `json:"stickerMessage"`
}

// RawExtText is the extended text branch.
type RawExtText struct {
	Text string `json:"text"`
}

// RawMedia is a media branch with an optional caption.
type RawMedia struct {
	Caption  string `json:"caption"`
	Mimetype string `json:"mimetype"`
	URL      string `json:"url"`
}

// RawDocument is the document branch.
type RawDocument struct {
	Caption  string `json:"caption"`
	FileName string `json:"fileName"`
	Mimetype string `json:"mimetype"`
}

// RawSticker is the sticker branch.
type RawSticker struct {
	Mimetype string `json:"mimetype"`
}

// RawConnectionUpdate is the connection.update webhook payload.
type RawConnectionUpdate struct {
	Instance string `json:"instance"`
	State    string `json:"state"`
	Status   string `json:"status"`
}

// RawMessageUpdate is the messages.update webhook payload.
type RawMessageUpdate struct {
	KeyID     string        `json:"keyId"`
	Key       RawMessageKey `json:"key"`
	RemoteJid string        `json:"remoteJid"`
	Status    string        `json:"status"`
}
