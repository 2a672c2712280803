package tui

import (
	"encoding/json"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// frame mirrors the hub's wire format.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type frameMsg frame

type feedConnectedMsg struct{ feed *feedConn }

type feedErrMsg struct{ err error }

// feedConn wraps the WebSocket feed. A goroutine reads frames into the
// channel; the model pulls them out one Cmd at a time.
type feedConn struct {
	conn   *websocket.Conn
	frames chan frame
}

func dialFeed(url string) tea.Cmd {
	return func() tea.Msg {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return feedErrMsg{err}
		}
		f := &feedConn{conn: conn, frames: make(chan frame, 16)}
		go f.readLoop()
		return feedConnectedMsg{f}
	}
}

func (f *feedConn) readLoop() {
	defer close(f.frames)
	for {
		var fr frame
		if err := f.conn.ReadJSON(&fr); err != nil {
			return
		}
		f.frames <- fr
	}
}

// waitFrame delivers the next feed frame as a message.
func waitFrame(f *feedConn) tea.Cmd {
	return func() tea.Msg {
		fr, ok := <-f.frames
		if !ok {
			return feedErrMsg{errors.New("feed closed")}
		}
		return frameMsg(fr)
	}
}

func (f *feedConn) close() {
	f.conn.Close()
}
