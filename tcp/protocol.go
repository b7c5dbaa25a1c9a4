package tcp

const (
	RouteAuth   = "auth"
	RouteSignup = "signup"
	RouteCreate = "create"
	RouteJoin   = "join"
	RouteChat   = "chat"
)

// Request is the decoded shape of one inbound frame. Route-specific
// fields are pointers so a missing field can be told apart from an empty
// one; a request whose matched route misses a required field falls
// through to the 404 response, exactly like an unknown route.
type Request struct {
	Route      string  `json:"route"`
	Username   *string `json:"username"`
	Password   *string `json:"password"`
	Name       *string `json:"name"`
	ChatroomID *string `json:"chatroom_id"`
	Msg        *string `json:"msg"`
}

func hasFields(fields ...*string) bool {
	for _, field := range fields {
		if field == nil {
			return false
		}
	}
	return true
}

// WireMessage is the client-visible shape of a chat message.
type WireMessage struct {
	Author     string `json:"author"`
	Text       string `json:"text"`
	ChatroomID string `json:"chatroom_id"`
}

// Response always carries a code; 200 for success, 404 for unknown or
// malformed requests, 500 with a reason for everything else.
type Response struct {
	Code       int            `json:"code"`
	Status     *bool          `json:"status,omitempty"`
	UUID       string         `json:"uuid,omitempty"`
	Token      string         `json:"token,omitempty"`
	ChatroomID string         `json:"chatroom_id,omitempty"`
	Msgs       *[]WireMessage `json:"msgs,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// BroadcastFrame is the out-of-band push delivered to every member of a
// room when a message is posted. It is not correlated to any request.
type BroadcastFrame struct {
	New WireMessage `json:"new"`
}

func notFoundResponse() Response {
	return Response{Code: 404, Reason: "Not Found"}
}

func errorResponse(err error) Response {
	return Response{Code: 500, Reason: err.Error()}
}
