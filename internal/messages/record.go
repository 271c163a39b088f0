package messages

import (
	"net/url"

	"github.com/abda11atar3k/leblebbot/internal/chats"
	"github.com/abda11atar3k/leblebbot/internal/gateway"
)

// Direction says which way a message travelled.
type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
)

// MediaInfo describes the media attached to a message.
type MediaInfo struct {
	Mimetype        string `json:"mimetype,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	ProxyURL        string `json:"proxy_url,omitempty"`
	ThumbnailBase64 string `json:"thumbnail_base64,omitempty"`
	FileName        string `json:"file_name,omitempty"`
	Voice           bool   `json:"voice,omitempty"`
}

// Record is one normalized chat message.
type Record struct {
	ID           string     `json:"id"`
	Content      string     `json:"content"`
	Direction    Direction  `json:"direction"`
	Timestamp    int64      `json:"timestamp"`
	SenderName   string     `json:"sender_name,omitempty"`
	SenderAvatar string     `json:"sender_avatar,omitempty"`
	Type         string     `json:"type"`
	Media        *MediaInfo `json:"media,omitempty"`
	RemoteJID    string     `json:"remote_jid"`
}

// deviceIDPrefixes are message-id patterns produced by the owning device.
// The gateway's fromMe flag is unreliable for internal-kind chats; an id
// with one of these prefixes originated locally even when the flag says
// otherwise.
var deviceIDPrefixes = []string{"3EB0", "BAE5"}

func deviceOriginatedID(id string) bool {
	for _, p := range deviceIDPrefixes {
		if len(id) >= len(p) && id[:len(p)] == p {
			return true
		}
	}
	return false
}

// classify maps a raw message body onto a type tag, content string and
// media descriptor. Detection order matches the chat-list preview logic so
// both surfaces agree on what a message "is".
func classify(msg *gateway.Message) (string, string, *MediaInfo) {
	if msg.Message == nil {
		return chats.TypeUnknown, "", nil
	}
	m := msg.Message

	switch {
	case m.Conversation != "":
		return chats.TypeText, m.Conversation, nil
	case m.ExtendedTextMessage != nil && m.ExtendedTextMessage.Text != "":
		return chats.TypeText, m.ExtendedTextMessage.Text, nil
	case m.ImageMessage != nil:
		return chats.TypeImage, m.ImageMessage.Caption, &MediaInfo{
			Mimetype:        m.ImageMessage.Mimetype,
			ThumbnailBase64: m.ImageMessage.JPEGThumbnail,
		}
	case m.VideoMessage != nil:
		return chats.TypeVideo, m.VideoMessage.Caption, &MediaInfo{
			Mimetype:        m.VideoMessage.Mimetype,
			DurationSeconds: m.VideoMessage.Seconds,
			ThumbnailBase64: m.VideoMessage.JPEGThumbnail,
		}
	case m.AudioMessage != nil:
		tag := chats.TypeAudio
		if m.AudioMessage.PTT {
			tag = chats.TypeVoice
		}
		return tag, "", &MediaInfo{
			Mimetype:        m.AudioMessage.Mimetype,
			DurationSeconds: m.AudioMessage.Seconds,
			Voice:           m.AudioMessage.PTT,
		}
	case m.StickerMessage != nil:
		return chats.TypeSticker, "", &MediaInfo{
			Mimetype:        m.StickerMessage.Mimetype,
			ThumbnailBase64: m.StickerMessage.JPEGThumbnail,
		}
	case m.DocumentMessage != nil:
		return chats.TypeDocument, "", &MediaInfo{
			Mimetype: m.DocumentMessage.Mimetype,
			FileName: m.DocumentMessage.FileName,
		}
	case m.ReactionMessage != nil:
		return chats.TypeReaction, m.ReactionMessage.Text, nil
	default:
		return chats.TypeUnknown, "", nil
	}
}

// mediaProxyURL builds the same-process media retrieval path, keyed by
// direction, chat identifier and message id.
func mediaProxyURL(direction Direction, chatJID, msgID string) string {
	return "/media/" + string(direction) + "/" + url.PathEscape(chatJID) + "/" + url.PathEscape(msgID)
}
