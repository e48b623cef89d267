package vertex

import "encoding/json"

// shape identifies which of the historically observed candidate layouts a
// raw candidate matched.
type shape int

const (
	shapeUnrecognized shape = iota
	shapeString
	shapeContentParts
	shapeContentString
	shapeText
	shapeParts
)

func (s shape) String() string {
	switch s {
	case shapeString:
		return "string"
	case shapeContentParts:
		return "content.parts"
	case shapeContentString:
		return "content-string"
	case shapeText:
		return "text"
	case shapeParts:
		return "parts"
	default:
		return "unrecognized"
	}
}

// Candidate is one parsed generation candidate. The generation endpoint has
// returned several incompatible candidate layouts across model versions, so
// ParseCandidate tries each known shape in a fixed precedence order and
// records which one matched.
type Candidate struct {
	FinishReason string

	shape shape
	text  string
}

type part struct {
	Text string `json:"text"`
}

// objectCandidate covers every field any known object layout can carry.
type objectCandidate struct {
	FinishReason string          `json:"finishReason"`
	Content      json.RawMessage `json:"content"`
	Text         string          `json:"text"`
	Parts        []part          `json:"parts"`
}

// ParseCandidate classifies one raw candidate. It never fails: input that
// matches no known layout comes back with an empty Text. Precedence: a bare
// JSON string, content.parts[0].text, content as a string, a top-level text
// field, then a top-level parts[0].text.
func ParseCandidate(raw json.RawMessage) Candidate {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Candidate{shape: shapeString, text: s}
	}

	var obj objectCandidate
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Candidate{shape: shapeUnrecognized}
	}

	c := Candidate{FinishReason: obj.FinishReason, shape: shapeUnrecognized}

	if len(obj.Content) > 0 {
		var content struct {
			Parts []part `json:"parts"`
		}
		if err := json.Unmarshal(obj.Content, &content); err == nil &&
			len(content.Parts) > 0 && content.Parts[0].Text != "" {
			c.shape, c.text = shapeContentParts, content.Parts[0].Text
			return c
		}
		var cs string
		if err := json.Unmarshal(obj.Content, &cs); err == nil && cs != "" {
			c.shape, c.text = shapeContentString, cs
			return c
		}
	}
	if obj.Text != "" {
		c.shape, c.text = shapeText, obj.Text
		return c
	}
	if len(obj.Parts) > 0 && obj.Parts[0].Text != "" {
		c.shape, c.text = shapeParts, obj.Parts[0].Text
		return c
	}
	return c
}

// Text returns the extracted candidate text; empty means extraction failed.
func (c Candidate) Text() string { return c.text }
