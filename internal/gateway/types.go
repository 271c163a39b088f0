package gateway

// Raw record shapes as returned by the messaging gateway. Field names track
// the gateway's JSON verbatim; no normalization happens at this layer.

// MessageKey identifies one message on the gateway.
type MessageKey struct {
	ID          string `json:"id"`
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	Participant string `json:"participant,omitempty"`
	// SenderPN carries the sender's direct identifier when the gateway
	// knows it, even if Participant is an internal one.
	SenderPN       string `json:"senderPn,omitempty"`
	ParticipantAlt string `json:"participantAlt,omitempty"`
}

// ExtendedText is the payload of a quoted/linked text message.
type ExtendedText struct {
	Text string `json:"text"`
}

// MediaPayload covers image, video and sticker message bodies.
type MediaPayload struct {
	Caption       string `json:"caption,omitempty"`
	Mimetype      string `json:"mimetype,omitempty"`
	Seconds       int    `json:"seconds,omitempty"`
	JPEGThumbnail string `json:"jpegThumbnail,omitempty"`
}

// AudioPayload is the body of an audio or push-to-talk voice message.
type AudioPayload struct {
	Mimetype string `json:"mimetype,omitempty"`
	Seconds  int    `json:"seconds,omitempty"`
	PTT      bool   `json:"ptt,omitempty"`
}

// DocumentPayload is the body of a document message.
type DocumentPayload struct {
	FileName string `json:"fileName,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	Title    string `json:"title,omitempty"`
}

// ReactionPayload is the body of an emoji reaction.
type ReactionPayload struct {
	Text string      `json:"text"`
	Key  *MessageKey `json:"key,omitempty"`
}

// MessageContent is the variant body of a message. Exactly one field is
// normally set; consumers must probe in a fixed order.
type MessageContent struct {
	Conversation        string           `json:"conversation,omitempty"`
	ExtendedTextMessage *ExtendedText    `json:"extendedTextMessage,omitempty"`
	ImageMessage        *MediaPayload    `json:"imageMessage,omitempty"`
	VideoMessage        *MediaPayload    `json:"videoMessage,omitempty"`
	AudioMessage        *AudioPayload    `json:"audioMessage,omitempty"`
	StickerMessage      *MediaPayload    `json:"stickerMessage,omitempty"`
	DocumentMessage     *DocumentPayload `json:"documentMessage,omitempty"`
	ReactionMessage     *ReactionPayload `json:"reactionMessage,omitempty"`
}

// Message is one raw chat message.
type Message struct {
	Key              MessageKey      `json:"key"`
	PushName         string          `json:"pushName,omitempty"`
	Message          *MessageContent `json:"message,omitempty"`
	MessageTimestamp int64           `json:"messageTimestamp,omitempty"`
}

// MessagePage is one page of raw messages plus the pre-pagination total.
type MessagePage struct {
	Records []Message `json:"records"`
	Total   int       `json:"total"`
}

// Chat is one raw chat row.
type Chat struct {
	ID            string   `json:"id,omitempty"`
	RemoteJID     string   `json:"remoteJid"`
	Name          string   `json:"name,omitempty"`
	PushName      string   `json:"pushName,omitempty"`
	NotifyName    string   `json:"notifyName,omitempty"`
	VerifiedName  string   `json:"verifiedName,omitempty"`
	ProfilePicURL string   `json:"profilePicUrl,omitempty"`
	UnreadCount   int      `json:"unreadCount,omitempty"`
	LastMessage   *Message `json:"lastMessage,omitempty"`
}

// JID returns the chat's wire identifier, preferring remoteJid.
func (c *Chat) JID() string {
	if c.RemoteJID != "" {
		return c.RemoteJID
	}
	return c.ID
}

// Contact is one raw contact-directory row.
type Contact struct {
	ID            string `json:"id"`
	RemoteJID     string `json:"remoteJid,omitempty"`
	PushName      string `json:"pushName,omitempty"`
	ProfilePicURL string `json:"profilePicUrl,omitempty"`
}

// JID returns the contact's wire identifier, preferring remoteJid.
func (c *Contact) JID() string {
	if c.RemoteJID != "" {
		return c.RemoteJID
	}
	return c.ID
}

// GroupInfo is the raw group metadata record.
type GroupInfo struct {
	ID         string `json:"id"`
	Subject    string `json:"subject"`
	PictureURL string `json:"pictureUrl,omitempty"`
	Size       int    `json:"size,omitempty"`
}

// Participant is one raw group roster entry. PhoneNumber, when present,
// maps the internal participant id to a direct identifier.
type Participant struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Name        string `json:"name,omitempty"`
	Admin       string `json:"admin,omitempty"`
	ImgURL      string `json:"imgUrl,omitempty"`
}

// Media is a fetched media payload, base64-encoded.
type Media struct {
	Base64   string `json:"base64"`
	Mimetype string `json:"mimetype"`
}

// InstanceInfo describes the connected gateway instance.
type InstanceInfo struct {
	Name             string `json:"name"`
	ConnectionStatus string `json:"connectionStatus"`
	OwnerJID         string `json:"ownerJid,omitempty"`
	ProfileName      string `json:"profileName,omitempty"`
}

// Connected reports whether the instance session is open.
func (i *InstanceInfo) Connected() bool { return i.ConnectionStatus == "open" }
