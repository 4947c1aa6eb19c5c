package codec

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// Messages travel as google.protobuf.Struct so the service needs no generated
// stubs. Field names below are the wire contract.

// #region service-names

const (
	ServiceName = "narrative.v1.Collaborator"

	methodClassify = "/" + ServiceName + "/Classify"
	methodGenerate = "/" + ServiceName + "/Generate"
	methodVerify   = "/" + ServiceName + "/Verify"
	methodEvaluate = "/" + ServiceName + "/Evaluate"
)

// #endregion service-names

// #region field-access

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func num(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func boolean(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

// #endregion field-access

// #region generate

func encodeGenerateRequest(req collab.GenerateRequest) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"context":    req.Context,
		"target":     string(req.Target),
		"position":   req.Position,
		"length":     req.Length,
		"foreshadow": string(req.Foreshadow),
	})
}

func decodeGenerateRequest(s *structpb.Struct) collab.GenerateRequest {
	return collab.GenerateRequest{
		Context:    str(s, "context"),
		Target:     narrative.Label(str(s, "target")),
		Position:   int(num(s, "position")),
		Length:     int(num(s, "length")),
		Foreshadow: narrative.Label(str(s, "foreshadow")),
	}
}

// #endregion generate

// #region verdict

func encodeVerdict(v collab.Verdict) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"verified":   v.Verified,
		"confidence": v.Confidence,
	})
}

func decodeVerdict(s *structpb.Struct) collab.Verdict {
	return collab.Verdict{Verified: boolean(s, "verified"), Confidence: num(s, "confidence")}
}

// #endregion verdict

// #region evaluate

func encodeEvaluateRequest(text string, steps []narrative.Step) (*structpb.Struct, error) {
	list := make([]any, len(steps))
	for i, st := range steps {
		list[i] = map[string]any{
			"index":      st.Index,
			"label":      string(st.Label),
			"text":       st.Text,
			"confidence": st.Confidence,
			"verified":   st.Verified,
			"retries":    st.Retries,
			"mode":       string(st.Mode),
		}
	}
	return structpb.NewStruct(map[string]any{"text": text, "steps": list})
}

func decodeEvaluateRequest(s *structpb.Struct) (string, []narrative.Step) {
	values := s.GetFields()["steps"].GetListValue().GetValues()
	steps := make([]narrative.Step, 0, len(values))
	for _, v := range values {
		st := v.GetStructValue()
		steps = append(steps, narrative.Step{
			Index:      int(num(st, "index")),
			Label:      narrative.Label(str(st, "label")),
			Text:       str(st, "text"),
			Confidence: num(st, "confidence"),
			Verified:   boolean(st, "verified"),
			Retries:    int(num(st, "retries")),
			Mode:       narrative.StepMode(str(st, "mode")),
		})
	}
	return str(s, "text"), steps
}

func encodeScores(sc collab.Scores) (*structpb.Struct, error) {
	values := make(map[string]any, len(sc.Values))
	for k, v := range sc.Values {
		values[k] = v
	}
	return structpb.NewStruct(map[string]any{"values": values, "notes": sc.Notes})
}

func decodeScores(s *structpb.Struct) collab.Scores {
	fields := s.GetFields()["values"].GetStructValue().GetFields()
	values := make(map[string]float64, len(fields))
	for k, v := range fields {
		values[k] = v.GetNumberValue()
	}
	return collab.Scores{Values: values, Notes: str(s, "notes")}
}

// #endregion evaluate
