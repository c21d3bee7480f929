package dto

// InternalMessage is the envelope of a control message injected by this server into its own inbox.
type InternalMessage struct {
	Type   string `json:"type"`
	Object any    `json:"object"`
}

const InternalMessageType = "__internal__"

type InboxAppendResp struct {
	Id int64 `json:"id"`
}
