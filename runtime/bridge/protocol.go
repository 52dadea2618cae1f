package bridge

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Client-declared mime types that are forwarded upstream.
const (
	MIMEAudioPCM  = "audio/pcm"
	MIMEImageJPEG = "image/jpeg"
)

// fragmentKinds routes a declared mime type to a fragment kind.
var fragmentKinds = map[string]FragmentKind{
	MIMEAudioPCM:  FragmentAudio,
	MIMEImageJPEG: FragmentImage,
}

// clientEnvelope is any message the client sends after the handshake.
type clientEnvelope struct {
	RealtimeInput *realtimeInput `json:"realtime_input"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"media_chunks"`
}

// mediaChunk is one entry of media_chunks. Decoding it never fails: a
// non-string mime type is kept in its JSON form and matches nothing, and a
// chunk that is not an object or carries non-string data is malformed.
type mediaChunk struct {
	MIMEType  string
	Data      string
	malformed bool
}

func (c *mediaChunk) UnmarshalJSON(b []byte) error {
	*c = mediaChunk{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil || fields == nil {
		c.malformed = true
		return nil
	}

	if raw, ok := fields["mime_type"]; ok {
		if err := json.Unmarshal(raw, &c.MIMEType); err != nil {
			c.MIMEType = string(raw)
		}
	}
	if raw, ok := fields["data"]; ok {
		if err := json.Unmarshal(raw, &c.Data); err != nil {
			c.Data = ""
			c.malformed = true
		}
	}
	return nil
}

// textMessage and audioMessage are the two server-to-client messages.
type textMessage struct {
	Text string `json:"text"`
}

type audioMessage struct {
	Audio string `json:"audio"`
}

var errNotObject = errors.New("message is not a JSON object")

// parseSetup decodes the client's first message. It returns the contents of
// the "setup" object and whether that key was present. Numbers keep their
// textual form so they are relayed without float rounding.
func parseSetup(data []byte) (map[string]any, bool, error) {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, err
	}
	if msg == nil {
		return nil, false, errNotObject
	}

	raw, ok := msg["setup"]
	if !ok {
		return map[string]any{}, false, nil
	}

	var setup map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&setup); err != nil {
		return nil, true, fmt.Errorf("setup: %w", err)
	}
	if setup == nil {
		setup = map[string]any{}
	}
	return setup, true, nil
}

// decodeEnvelope parses a post-handshake client message. A nil input section
// means the message carried nothing to forward.
func decodeEnvelope(data []byte) (*realtimeInput, error) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return env.RealtimeInput, nil
}

// fragmentFor maps a media chunk to a fragment; ok is false for mime types
// that are not forwarded.
func fragmentFor(c mediaChunk) (Fragment, bool) {
	if c.malformed {
		return Fragment{}, false
	}
	kind, ok := fragmentKinds[c.MIMEType]
	if !ok {
		return Fragment{}, false
	}
	return Fragment{Kind: kind, MIMEType: c.MIMEType, Data: c.Data}, true
}

func encodeText(s string) ([]byte, error) {
	return json.Marshal(textMessage{Text: s})
}

// encodeInlineData always uses the "audio" key; the declared mime type is not
// reflected in the client message.
func encodeInlineData(b []byte) ([]byte, error) {
	return json.Marshal(audioMessage{Audio: base64.StdEncoding.EncodeToString(b)})
}
