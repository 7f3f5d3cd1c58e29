// Package alexa implements the voice channel: request envelope handling,
// trigger-based chatbot routing, session resolution and SSML response
// transformation.
package alexa

import "encoding/json"

// Request is the inbound Alexa skill request envelope.
type Request struct {
	Version string  `json:"version"`
	Session Session `json:"session"`
	Request struct {
		Type   string `json:"type"`
		Intent Intent `json:"intent"`
		Reason string `json:"reason,omitempty"`
	} `json:"request"`
}

type Session struct {
	New        bool           `json:"new"`
	SessionID  string         `json:"sessionId"`
	Attributes map[string]any `json:"attributes,omitempty"`
	User       SessionUser    `json:"user"`
}

type SessionUser struct {
	UserID      string `json:"userId"`
	AccessToken string `json:"accessToken,omitempty"`
}

type Intent struct {
	Name  string          `json:"name"`
	Slots map[string]Slot `json:"slots,omitempty"`
}

type Slot struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// Utterance returns the spoken text carried by the intent, checking the
// slot names the interaction model uses for free-form speech.
func (r Request) Utterance() string {
	for _, name := range []string{"question", "query", "text", "searchQuery"} {
		if s, ok := r.Request.Intent.Slots[name]; ok && s.Value != "" {
			return s.Value
		}
	}
	return ""
}

// Response is the outbound Alexa skill response envelope.
type Response struct {
	Version           string         `json:"version"`
	SessionAttributes map[string]any `json:"sessionAttributes,omitempty"`
	Response          ResponseBody   `json:"response"`
}

type ResponseBody struct {
	OutputSpeech     *OutputSpeech `json:"outputSpeech,omitempty"`
	Card             *Card         `json:"card,omitempty"`
	Reprompt         *Reprompt     `json:"reprompt,omitempty"`
	ShouldEndSession bool          `json:"shouldEndSession"`
}

type OutputSpeech struct {
	Type string `json:"type"` // "SSML" or "PlainText"
	SSML string `json:"ssml,omitempty"`
	Text string `json:"text,omitempty"`
}

type Card struct {
	Type string `json:"type"` // "LinkAccount" or "Simple"
	Title string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

type Reprompt struct {
	OutputSpeech OutputSpeech `json:"outputSpeech"`
}

func (r Response) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// speakSSML builds a response with SSML output speech.
func speakSSML(ssml string, endSession bool) Response {
	return Response{
		Version: "1.0",
		Response: ResponseBody{
			OutputSpeech:     &OutputSpeech{Type: "SSML", SSML: ssml},
			ShouldEndSession: endSession,
		},
	}
}

// speakPlain builds a plain-text response, optionally with a reprompt
// that keeps the session open.
func speakPlain(text, reprompt string, endSession bool) Response {
	resp := Response{
		Version: "1.0",
		Response: ResponseBody{
			OutputSpeech:     &OutputSpeech{Type: "PlainText", Text: text},
			ShouldEndSession: endSession,
		},
	}
	if reprompt != "" {
		resp.Response.Reprompt = &Reprompt{
			OutputSpeech: OutputSpeech{Type: "PlainText", Text: reprompt},
		}
	}
	return resp
}

// linkAccountResponse tells the Alexa app to start account linking.
func linkAccountResponse() Response {
	return Response{
		Version: "1.0",
		Response: ResponseBody{
			OutputSpeech: &OutputSpeech{
				Type: "PlainText",
				Text: "Please link your account in the Alexa app to use this skill.",
			},
			Card:             &Card{Type: "LinkAccount"},
			ShouldEndSession: true,
		},
	}
}
