package chat

// Update is the subset of a Telegram webhook update the ingress handles.
type Update struct {
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

// Message is an inbound chat message carrying text, a photo or a document.
type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from"`
	Chat      *Chat       `json:"chat"`
	Text      string      `json:"text"`
	Photo     []PhotoSize `json:"photo"`
	Document  *Document   `json:"document"`
}

// CallbackQuery is an inline keyboard button tap.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

// User identifies the sender.
type User struct {
	ID int64 `json:"id"`
}

// Chat identifies the conversation.
type Chat struct {
	ID int64 `json:"id"`
}

// PhotoSize is one rendition of a photo; Telegram orders them smallest first.
type PhotoSize struct {
	FileID string `json:"file_id"`
}

// Document is a file attachment (PDF and friends).
type Document struct {
	FileID string `json:"file_id"`
}
