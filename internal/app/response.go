package app

import (
	"encoding/json"

	"autorenew/internal/domain"
	"autorenew/internal/msg"
)

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Message is an outbound call emitted by a handler. Origin is the address the
// call is issued from: the module itself, or the owning account when Proxied.
type Message struct {
	Origin  domain.Addr    `json:"origin"`
	Proxied bool           `json:"proxied"`
	Call    msg.RemoteCall `json:"call"`
}

type Response struct {
	Action     string          `json:"action"`
	Attributes []Attribute     `json:"attributes"`
	Messages   []Message       `json:"messages"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func newResponse(action string) *Response {
	return &Response{Action: action, Attributes: []Attribute{{Key: "action", Value: action}}}
}

func (r *Response) attr(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

// direct issues call from the module address.
func (r *Response) direct(env Env, call msg.RemoteCall) *Response {
	r.Messages = append(r.Messages, Message{Origin: env.Contract, Call: call})
	return r
}

// proxied issues call from the owning account on behalf of the module.
func (r *Response) proxied(env Env, call msg.RemoteCall) *Response {
	r.Messages = append(r.Messages, Message{Origin: env.Account, Proxied: true, Call: call})
	return r
}

func (r *Response) Attr(key string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}
