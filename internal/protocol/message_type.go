package protocol

// MessageType is the u16 BE wire discriminator. Grouping by high byte
// mirrors the original source's ProtocolParser::MessageType enum:
// 0x00xx auth, 0x01xx chat, 0x02xx presence, 0x03xx file, 0x0Fxx system.
type MessageType uint16

const (
	LoginRequest    MessageType = 0x0001
	LoginResponse   MessageType = 0x0002
	LogoutRequest   MessageType = 0x0003
	LogoutResponse  MessageType = 0x0004
	RegisterRequest MessageType = 0x0005
	RegisterResp    MessageType = 0x0006

	SendMessage       MessageType = 0x0101
	MessageReceived   MessageType = 0x0102
	MessageDelivered  MessageType = 0x0103
	MessageRead       MessageType = 0x0104
	GroupSend         MessageType = 0x0110
	GroupMessage      MessageType = 0x0111

	UserOnline       MessageType = 0x0201
	UserOffline      MessageType = 0x0202
	UserListRequest  MessageType = 0x0203
	UserListResponse MessageType = 0x0204

	FileUploadRequest    MessageType = 0x0301
	FileUploadResponse   MessageType = 0x0302
	FileDownloadRequest  MessageType = 0x0303
	FileDownloadResponse MessageType = 0x0304
	FileChunk            MessageType = 0x0305

	Heartbeat         MessageType = 0x0F01
	HeartbeatResponse MessageType = 0x0F02
	ErrorMessage      MessageType = 0x0FFF
)

var typeNames = map[MessageType]string{
	LoginRequest:    "login_request",
	LoginResponse:   "login_response",
	LogoutRequest:   "logout_request",
	LogoutResponse:  "logout_response",
	RegisterRequest: "register_request",
	RegisterResp:    "register_response",

	SendMessage:      "send_message",
	MessageReceived:  "message_received",
	MessageDelivered: "message_delivered",
	MessageRead:      "message_read",
	GroupSend:        "group_send",
	GroupMessage:     "group_message",

	UserOnline:       "user_online",
	UserOffline:      "user_offline",
	UserListRequest:  "user_list_request",
	UserListResponse: "user_list_response",

	FileUploadRequest:    "file_upload_request",
	FileUploadResponse:   "file_upload_response",
	FileDownloadRequest:  "file_download_request",
	FileDownloadResponse: "file_download_response",
	FileChunk:            "file_chunk",

	Heartbeat:         "heartbeat",
	HeartbeatResponse: "heartbeat_response",
	ErrorMessage:      "error",
}

func (t MessageType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// FromString resolves a wire "type" JSON field back to a MessageType,
// mirroring ProtocolParser::getMessageTypeFromString.
func FromString(s string) (MessageType, bool) {
	for t, name := range typeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}
