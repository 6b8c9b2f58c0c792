package thor

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketMessageMode selects the wire representation SendJSON/ReceiveJSON
// use.
type WebSocketMessageMode int

// Supported WebSocket JSON message modes.
const (
	WebSocketText WebSocketMessageMode = iota
	WebSocketBinary
)

// ErrWebSocketDisconnect is the distinguished error Receive* methods
// return when the peer has disconnected. It carries the close code the
// peer (or the network) reported, per spec §4.14.
type ErrWebSocketDisconnect struct {
	Code int
}

func (e *ErrWebSocketDisconnect) Error() string {
	return "thor: websocket disconnected"
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket is a thin pull-style wrapper over the host adapter's WebSocket
// protocol (here, gorilla/websocket), matching the Accept/Send/Receive
// shape spec §4.14 describes.
type WebSocket struct {
	conn        *websocket.Conn
	accepted    bool
	closed      bool
}

// IsWebSocketUpgrade reports whether req is an incoming WebSocket upgrade
// request, used by the dispatcher to route to the WEBSOCKET pseudo-method
// instead of the ordinary HTTP method.
func IsWebSocketUpgrade(req *Request) bool {
	r := req.Raw()
	return websocketHeaderContains(r.Header.Get("Connection"), "upgrade") &&
		r.Header.Get("Upgrade") != "" &&
		r.Method == http.MethodGet
}

func websocketHeaderContains(header, token string) bool {
	for _, part := range splitCommaList(header) {
		if equalFoldTrim(part, token) {
			return true
		}
	}
	return false
}

func splitCommaList(s string) []string {
	out := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func equalFoldTrim(a, b string) bool {
	trimmed := trimSpaceASCII(a)
	if len(trimmed) != len(b) {
		return false
	}
	for i := 0; i < len(trimmed); i++ {
		ca, cb := trimmed[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func trimSpaceASCII(s string) string {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	return s[i:j]
}

// Accept upgrades the underlying HTTP connection to a WebSocket, optionally
// negotiating subprotocol and sending extra response headers. It MUST be
// called before any Send/Receive call.
func Accept(w http.ResponseWriter, r *http.Request, subprotocol string, headers http.Header) (*WebSocket, error) {
	if subprotocol != "" {
		if headers == nil {
			headers = http.Header{}
		}
		headers.Set("Sec-WebSocket-Protocol", subprotocol)
	}
	conn, err := upgrader.Upgrade(w, r, headers)
	if err != nil {
		return nil, err
	}
	return &WebSocket{conn: conn, accepted: true}, nil
}

// Close closes the connection with code and reason.
func (ws *WebSocket) Close(code int, reason string) error {
	if ws.closed {
		return nil
	}
	ws.closed = true
	_ = ws.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	return ws.conn.Close()
}

// SendText sends s as a text frame.
func (ws *WebSocket) SendText(s string) error {
	return ws.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

// SendBytes sends b as a binary frame.
func (ws *WebSocket) SendBytes(b []byte) error {
	return ws.conn.WriteMessage(websocket.BinaryMessage, b)
}

// SendJSON marshals v and sends it as a text or binary frame, per mode.
func (ws *WebSocket) SendJSON(v interface{}, mode WebSocketMessageMode) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if mode == WebSocketBinary {
		return ws.SendBytes(b)
	}
	return ws.SendText(string(b))
}

// Receive reads the next frame, returning its type ("text" or "binary")
// and payload. A peer disconnect surfaces as *ErrWebSocketDisconnect.
func (ws *WebSocket) Receive() (kind string, payload []byte, err error) {
	mt, data, err := ws.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return "", nil, &ErrWebSocketDisconnect{Code: ce.Code}
		}
		return "", nil, &ErrWebSocketDisconnect{Code: websocket.CloseAbnormalClosure}
	}
	if mt == websocket.BinaryMessage {
		return "binary", data, nil
	}
	return "text", data, nil
}

// ReceiveText reads the next frame and returns it as a string.
func (ws *WebSocket) ReceiveText() (string, error) {
	_, data, err := ws.Receive()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReceiveBytes reads the next frame and returns its raw payload.
func (ws *WebSocket) ReceiveBytes() ([]byte, error) {
	_, data, err := ws.Receive()
	return data, err
}

// ReceiveJSON reads the next frame and unmarshals it into v.
func (ws *WebSocket) ReceiveJSON(v interface{}) error {
	_, data, err := ws.Receive()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// DispatchWebSocket resolves an upgrade request against router using the
// WEBSOCKET pseudo-method. On no match, it responds with a close frame
// carrying code 1008 (policy violation) per spec §4.14, without ever
// invoking a handler.
func DispatchWebSocket(router *Router, w http.ResponseWriter, r *http.Request, maxBodySize int64) error {
	result := router.Lookup(WebSocketMethod, r.URL.Path)
	if result.Route == nil {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return err
		}
		defer conn.Close()
		return conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "no matching route"),
		)
	}

	req := NewRequest(r, maxBodySize)
	for k, v := range result.Params {
		req.PathParams[k] = v
	}
	res := NewResponse(w)
	return result.Route.Handler(req, res)
}
