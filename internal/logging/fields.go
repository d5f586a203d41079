package logging

const (
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	FieldMemberID  = "member_id"
	FieldSessionID = "session_id"
	FieldRoomID    = "room_id"
	FieldTradeID   = "trade_id"
	FieldCode      = "code"

	FieldService = "service"
)

const HeaderRequestID = "X-Request-ID"
