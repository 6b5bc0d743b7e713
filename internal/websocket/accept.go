package websocket

import (
	"net/http"

	ws "nhooyr.io/websocket"
)

// Accept upgrades an HTTP request to a WebSocket connection.
func Accept(w http.ResponseWriter, r *http.Request, acceptOpts *ws.AcceptOptions) (*ws.Conn, error) {
	if acceptOpts == nil {
		acceptOpts = &ws.AcceptOptions{
			// The page may be served straight from the front-end dev server
			// on a different localhost port, so origin checks only get in
			// the way here.
			InsecureSkipVerify: true,
		}
	}
	return ws.Accept(w, r, acceptOpts)
}
