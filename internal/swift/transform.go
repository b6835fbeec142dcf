package swift

import (
	"strings"

	"github.com/chirino/solace-bridge/internal/model"
)

// Result is the outcome of one transformation. OutputMessage is set only on
// SUCCESS; Warnings carry non-fatal caveats of lossy mappings.
type Result struct {
	Status            model.TransformationStatus
	OutputMessage     string
	OutputMessageType string
	ErrorMessage      string
	Warnings          []string
	ConfidenceScore   *float64
}

const errNotImplemented = "transformation not yet implemented"

// lossyConfidence is reported by mappings that discard institution detail.
const lossyConfidence = 0.8

// Transform applies one structural transformation to an MT message. It is a
// pure function: failures come back as a Result status, never a panic.
func Transform(content string, t model.TransformationType) Result {
	switch t {
	case model.MT103ToPain001, model.MT202ToPacs008, model.MT940ToCamt053,
		model.Pain001ToMT103, model.Pacs008ToMT202, model.Camt053ToMT940,
		model.Custom:
		return Result{Status: model.TransformFailed, ErrorMessage: errNotImplemented}
	}

	msg, err := Parse(content)
	if err != nil {
		return Result{Status: model.TransformParseError, ErrorMessage: err.Error()}
	}

	switch t {
	case model.MT103ToMT202:
		return mtToMT(msg, "202", map[string]string{"50K": "52A", "59": "58A"}, nil)
	case model.MT202ToMT103:
		return mtToMT(msg, "103", map[string]string{"52A": "50K", "58A": "59"},
			[]string{"institution to customer mapping is lossy"})
	case model.MT940ToMT950:
		return mt940ToMT950(msg)
	case model.EnrichFields:
		return enrichFields(msg)
	case model.NormalizeFormat:
		return normalizeFormat(msg)
	default:
		return Result{Status: model.TransformFailed, ErrorMessage: errNotImplemented}
	}
}

// mtToMT retags the message and renames party fields. A target tag already
// present in the input wins over the renamed source field, which is dropped.
func mtToMT(msg *Message, newType string, tagMap map[string]string, warnings []string) Result {
	if res, ok := requireFields(msg, "20", "32A"); !ok {
		return res
	}
	out := make([]Field, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		target, renamed := tagMap[f.Tag]
		if !renamed {
			out = append(out, f)
			continue
		}
		if msg.HasField(target) {
			continue
		}
		out = append(out, Field{Tag: target, Value: f.Value})
	}
	msg.Fields = out
	msg.SetType(newType)

	res := Result{
		Status:            model.TransformSuccess,
		OutputMessage:     msg.Render(),
		OutputMessageType: "MT" + newType,
		Warnings:          warnings,
	}
	if len(warnings) > 0 {
		score := lossyConfidence
		res.ConfidenceScore = &score
	}
	return res
}

// mt940ToMT950 retags a customer statement as a bare statement: same
// statement fields, the :86: information-to-account-owner lines dropped.
func mt940ToMT950(msg *Message) Result {
	if res, ok := requireFields(msg, "20"); !ok {
		return res
	}
	out := make([]Field, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		if f.Tag == "86" {
			continue
		}
		out = append(out, f)
	}
	msg.Fields = out
	msg.SetType("950")
	return Result{
		Status:            model.TransformSuccess,
		OutputMessage:     msg.Render(),
		OutputMessageType: "MT950",
	}
}

// enrichFields stamps a {108:} message-user-reference into the block-3 user
// header, keyed off :20: when present. An existing {108:} is left alone.
func enrichFields(msg *Message) Result {
	ref := "ENRICHED"
	if v, ok := msg.Field("20"); ok {
		ref = strings.TrimSpace(strings.SplitN(v, "\n", 2)[0])
	}
	b3, _ := msg.Block(3)
	if !strings.Contains(b3, "{108:") {
		msg.SetBlock(3, b3+"{108:"+ref+"}")
	}
	return Result{
		Status:            model.TransformSuccess,
		OutputMessage:     msg.Render(),
		OutputMessageType: "MT" + msg.Type(),
	}
}

// normalizeFormat canonicalizes block 4: CRLF becomes LF and trailing
// whitespace is stripped from every value line. Tags are untouched.
func normalizeFormat(msg *Message) Result {
	for i, f := range msg.Fields {
		lines := strings.Split(f.Value, "\n")
		for j, line := range lines {
			lines[j] = strings.TrimRight(line, " \t\r")
		}
		msg.Fields[i].Value = strings.Join(lines, "\n")
	}
	return Result{
		Status:            model.TransformSuccess,
		OutputMessage:     msg.Render(),
		OutputMessageType: "MT" + msg.Type(),
	}
}

func requireFields(msg *Message, tags ...string) (Result, bool) {
	for _, tag := range tags {
		if !msg.HasField(tag) {
			return Result{
				Status:       model.TransformValidationError,
				ErrorMessage: "missing required field :" + tag + ":",
			}, false
		}
	}
	return Result{}, true
}
