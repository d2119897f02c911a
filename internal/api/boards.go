package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/canvas"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/session"
)

// CreateBoardRequest is the request body for opening a board
type CreateBoardRequest struct {
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Color     string `json:"color,omitempty"`
	LineWidth int    `json:"line_width,omitempty"`
	PartID    string `json:"part_id,omitempty"`
}

func (s *Server) createBoard(w http.ResponseWriter, r *http.Request) {
	var req CreateBoardRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	b, err := s.boards.Create(req.Width, req.Height, req.Color, req.LineWidth)
	if err != nil {
		s.fail(w, err)
		return
	}
	if req.PartID != "" {
		if err := b.SelectPart(req.PartID); err != nil {
			s.boards.Delete(b.ID())
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusCreated, b.Info())
}

func (s *Server) listBoards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"boards": s.boards.List()})
}

func (s *Server) board(w http.ResponseWriter, r *http.Request) (*session.Board, bool) {
	b, err := s.boards.Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return nil, false
	}
	return b, true
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b.Info())
}

func (s *Server) deleteBoard(w http.ResponseWriter, r *http.Request) {
	if err := s.boards.Delete(r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EventsResponse reports the result of a batch of pointer events
type EventsResponse struct {
	Outcomes []canvas.Outcome `json:"outcomes"`
	Board    session.Info     `json:"board"`
	Error    string           `json:"error,omitempty"`
}

func (s *Server) applyEvents(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	var events []canvas.Event
	if err := decodeBody(w, r, &events); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := EventsResponse{Outcomes: make([]canvas.Outcome, 0, len(events))}
	status := http.StatusOK
	err := b.Do(func(sf *canvas.Surface) error {
		for i, ev := range events {
			out, err := canvas.Apply(sf, ev)
			if err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
			resp.Outcomes = append(resp.Outcomes, out)
		}
		return nil
	})
	if err != nil {
		// events before the failing one stay applied
		status = statusFor(err)
		resp.Error = err.Error()
	}
	resp.Board = b.Info()
	writeJSON(w, status, resp)
}

// StreamAck answers one event received over the websocket
type StreamAck struct {
	Seq     int            `json:"seq"`
	Outcome canvas.Outcome `json:"outcome"`
	Error   string         `json:"error,omitempty"`
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	s.addStream(conn)
	defer func() {
		s.removeStream(conn)
		conn.Close()
	}()
	conn.SetReadLimit(64 << 10)

	log := s.log.With(zap.String("board", b.ID()))
	log.Debug("stream opened")

	for seq := 1; ; seq++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("stream closed", zap.Error(err))
			}
			return
		}

		ack := StreamAck{Seq: seq}
		var ev canvas.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			ack.Error = "invalid event: " + err.Error()
		} else {
			ack.Outcome, err = b.Apply(ev)
			if err != nil {
				ack.Error = err.Error()
			}
			if errors.Is(err, session.ErrBoardNotFound) {
				conn.WriteJSON(ack)
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "board deleted"))
				return
			}
		}
		if err := conn.WriteJSON(ack); err != nil {
			return
		}
	}
}

func (s *Server) boardImage(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	var data []byte
	err := b.Do(func(sf *canvas.Surface) error {
		var err error
		data, err = sf.Export()
		return err
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writePNG(w, data)
}

func (s *Server) boardDataURI(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	var uri string
	err := b.Do(func(sf *canvas.Surface) error {
		var err error
		uri, err = sf.DataURI()
		return err
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"data_uri": uri})
}

// SelectPartRequest is the request body for labelling a board
type SelectPartRequest struct {
	PartID string `json:"part_id"`
}

func (s *Server) selectPart(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	var req SelectPartRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := b.SelectPart(req.PartID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b.Info())
}

func (s *Server) saveBoard(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	c, err := b.Capture()
	if err != nil {
		s.fail(w, err)
		return
	}
	d, err := s.store.SaveDrawing(c.Label, c.PartID, c.PNG, c.Width, c.Height)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("drawing saved", zap.String("board", b.ID()), zap.String("drawing", d.ID), zap.String("part", d.PartID))
	writeJSON(w, http.StatusCreated, d)
}
