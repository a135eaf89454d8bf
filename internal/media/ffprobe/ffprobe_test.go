package ffprobe

import "testing"

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video"},
			{CodecType: "audio"},
		},
		Format: Format{Duration: "123.45"},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
}

func TestDurationSecondsHandlesMissingAndInvalid(t *testing.T) {
	for _, value := range []string{"", "bad", "-4"} {
		result := Result{Format: Format{Duration: value}}
		if result.DurationSeconds() != 0 {
			t.Fatalf("duration %q: expected 0, got %v", value, result.DurationSeconds())
		}
	}
}
