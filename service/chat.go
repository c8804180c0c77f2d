package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/drivers/conversational"
	"github.com/Comcast/formflow/session"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{} // use default options

// ChatOp is a message from a chat client.
//
// Op is "start", "reply", "continue", "restart", or "view".
type ChatOp struct {
	Op string `json:"op"`

	// FormId, Initial, and TestMode are for "start".
	FormId   string         `json:"formId,omitempty"`
	Initial  core.Responses `json:"initial,omitempty"`
	TestMode bool           `json:"testMode,omitempty"`

	// QuestionId, Text, and Value are for "reply" and
	// "continue".
	QuestionId string      `json:"questionId,omitempty"`
	Text       string      `json:"text,omitempty"`
	Value      interface{} `json:"value,omitempty"`
}

// Do runs the op against the client's conversation.  The caller
// should hold the Client's lock.
func (op *ChatOp) Do(ctx context.Context, s *Service, c *Client) error {
	switch op.Op {
	case "start":
		return s.Start(ctx, c, &StartRequest{
			FormId:   op.FormId,
			Mode:     session.Conversational,
			Initial:  op.Initial,
			TestMode: op.TestMode,
		})
	case "view":
		return nil
	}

	if err := c.mounted(session.Conversational); err != nil {
		return err
	}

	switch op.Op {
	case "reply":
		return c.Conversation.Reply(ctx, conversational.Turn{
			QuestionId: op.QuestionId,
			Text:       op.Text,
			Value:      op.Value,
		})
	case "continue":
		_, err := c.Conversation.Continue(ctx, op.QuestionId)
		return err
	case "restart":
		_, err := c.Conversation.Restart(ctx)
		return err
	default:
		return fmt.Errorf("unknown op '%s'", op.Op)
	}
}

// chat is a WebSocket endpoint for the conversational driver.  Each
// incoming ChatOp gets a View (or a Problem) in reply.
func (s *Service) chat(w http.ResponseWriter, r *http.Request) {
	id := cid(r)

	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("upgrade error", err)
		return
	}
	defer c.Close()

	ctx := r.Context()

	s.logf("chat open %s", id)

	for {
		mt, message, err := c.ReadMessage()
		if err != nil {
			s.logf("chat read %s: %s", id, err)
			break
		}

		var (
			op   ChatOp
			v    *View
			resp interface{}
		)
		if err = json.Unmarshal(message, &op); err != nil {
			resp = &Problem{Error: fmt.Sprintf("can't parse: %v", err)}
		} else {
			err = s.Do(ctx, "chat."+op.Op, id, func(cl *Client) error {
				err := op.Do(ctx, s, cl)
				v = cl.View(ctx)
				return err
			})
			if err != nil {
				resp = &Problem{Error: err.Error(), View: v}
			} else {
				resp = v
			}
		}

		js, err := json.Marshal(resp)
		if err != nil {
			log.Printf("Service chat Marshal error %v", err)
			continue
		}
		if err = c.WriteMessage(mt, js); err != nil {
			log.Println("chat write:", err)
			break
		}
	}
}
