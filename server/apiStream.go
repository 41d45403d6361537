package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Stream every result from the camera stream over a websocket, as JSON text messages.
// The client doesn't send us anything. When it closes the connection, we stop.
func (s *Server) httpStreamResults(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpStreamResults websocket upgrade failed: %v", err)
		return
	}
	defer c.Close()

	results := s.Monitor.AddWatcher()
	defer s.Monitor.RemoveWatcher(results)

	// Detect when the client goes away
	clientGone := make(chan bool)
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				close(clientGone)
				return
			}
		}
	}()

	nSent := 0
	for {
		select {
		case <-clientGone:
			s.Log.Infof("httpStreamResults client closed after %v results", nSent)
			return
		case result, ok := <-results:
			if !ok {
				// Monitor is closed
				c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "Shutting down"), time.Now().Add(time.Second))
				return
			}
			c.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.WriteJSON(makeResultJSON(result)); err != nil {
				s.Log.Infof("httpStreamResults write failed after %v results: %v", nSent, err)
				return
			}
			nSent++
		}
	}
}
