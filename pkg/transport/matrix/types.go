package matrix

import "encoding/json"

type createRoomRequest struct {
	Preset     string `json:"preset"`
	Name       string `json:"name,omitempty"`
	Visibility string `json:"visibility"`
	IsDirect   bool   `json:"is_direct"`
}

type createRoomResponse struct {
	RoomID string `json:"room_id"`
}

type topicContent struct {
	Topic string `json:"topic"`
}

type messageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

type userRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

type whoAmIResponse struct {
	UserID string `json:"user_id"`
}

type syncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join   map[string]joinedRoom      `json:"join"`
		Invite map[string]json.RawMessage `json:"invite"`
	} `json:"rooms"`
}

type joinedRoom struct {
	State struct {
		Events []event `json:"events"`
	} `json:"state"`
	Timeline struct {
		Events []event `json:"events"`
	} `json:"timeline"`
}

type event struct {
	Type     string          `json:"type"`
	Sender   string          `json:"sender"`
	EventID  string          `json:"event_id"`
	StateKey *string         `json:"state_key,omitempty"`
	Content  json.RawMessage `json:"content"`
}

type memberContent struct {
	Membership string `json:"membership"`
}
