package transcode

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"clipforge/internal/jobqueue"
)

// ErrInvalidParams indicates transform parameters that fail validation.
var ErrInvalidParams = errors.New("invalid transform parameters")

// Params is implemented by the per-kind parameter types.
type Params interface {
	// Validate checks the parameters against the source duration in
	// seconds. A zero duration disables range checks (the container did
	// not report one).
	Validate(durationSeconds float64) error
}

// TrimParams selects the [Start, End) window to keep, in seconds.
type TrimParams struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Validate implements Params.
func (p TrimParams) Validate(durationSeconds float64) error {
	if p.Start < 0 {
		return fmt.Errorf("%w: start must not be negative", ErrInvalidParams)
	}
	if p.End <= p.Start {
		return fmt.Errorf("%w: end must be greater than start", ErrInvalidParams)
	}
	if durationSeconds > 0 && p.End > durationSeconds {
		return fmt.Errorf("%w: end %.3f exceeds source duration %.3f", ErrInvalidParams, p.End, durationSeconds)
	}
	return nil
}

// SubtitleParams overlays Text between Start and End seconds.
type SubtitleParams struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Validate implements Params.
func (p SubtitleParams) Validate(durationSeconds float64) error {
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("%w: subtitle text is required", ErrInvalidParams)
	}
	if p.Start < 0 {
		return fmt.Errorf("%w: start must not be negative", ErrInvalidParams)
	}
	if p.End <= p.Start {
		return fmt.Errorf("%w: end must be greater than start", ErrInvalidParams)
	}
	if durationSeconds > 0 && p.Start >= durationSeconds {
		return fmt.Errorf("%w: start %.3f is past the source duration %.3f", ErrInvalidParams, p.Start, durationSeconds)
	}
	return nil
}

// RenderParams carries no options: rendering always produces the
// standard h264/aac delivery encode.
type RenderParams struct{}

// Validate implements Params.
func (p RenderParams) Validate(float64) error {
	return nil
}

// DecodeParams parses the stored parameter payload for a job kind.
func DecodeParams(kind jobqueue.Kind, payload string) (Params, error) {
	if strings.TrimSpace(payload) == "" {
		payload = "{}"
	}
	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.DisallowUnknownFields()

	switch kind {
	case jobqueue.KindTrim:
		var params TrimParams
		if err := decoder.Decode(&params); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		return params, nil
	case jobqueue.KindSubtitle:
		var params SubtitleParams
		if err := decoder.Decode(&params); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		return params, nil
	case jobqueue.KindRender:
		var params RenderParams
		if err := decoder.Decode(&params); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		return params, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidParams, kind)
	}
}

// EncodeParams serializes parameters for queue storage.
func EncodeParams(params Params) (string, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	return string(encoded), nil
}
