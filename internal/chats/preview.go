package chats

import "github.com/abda11atar3k/leblebbot/internal/gateway"

// previewMaxLen bounds the preview text length in runes.
const previewMaxLen = 100

// Message type tags shared with the message merger.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeVoice    = "voice"
	TypeDocument = "document"
	TypeSticker  = "sticker"
	TypeReaction = "reaction"
	TypeUnknown  = "unknown"
)

// Preview builds the last-message preview string and type tag. Detection
// order is fixed: plain text wins over media caption fields.
func Preview(msg *gateway.Message) (string, string) {
	if msg == nil || msg.Message == nil {
		return "", TypeUnknown
	}
	m := msg.Message

	switch {
	case m.Conversation != "":
		return truncate(m.Conversation), TypeText
	case m.ExtendedTextMessage != nil && m.ExtendedTextMessage.Text != "":
		return truncate(m.ExtendedTextMessage.Text), TypeText
	case m.ImageMessage != nil:
		return captionOr(m.ImageMessage.Caption, "[image]"), TypeImage
	case m.VideoMessage != nil:
		return captionOr(m.VideoMessage.Caption, "[video]"), TypeVideo
	case m.AudioMessage != nil:
		if m.AudioMessage.PTT {
			return "[voice message]", TypeVoice
		}
		return "[audio]", TypeAudio
	case m.StickerMessage != nil:
		return "[sticker]", TypeSticker
	case m.DocumentMessage != nil:
		return captionOr(m.DocumentMessage.FileName, "[document]"), TypeDocument
	case m.ReactionMessage != nil:
		return truncate(m.ReactionMessage.Text), TypeReaction
	default:
		return "", TypeUnknown
	}
}

func captionOr(caption, placeholder string) string {
	if caption != "" {
		return truncate(caption)
	}
	return placeholder
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= previewMaxLen {
		return s
	}
	return string(runes[:previewMaxLen])
}
