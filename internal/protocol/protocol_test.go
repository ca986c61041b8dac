package protocol

import "testing"

func TestDecodeLineBlankProducesNoEvent(t *testing.T) {
	for _, line := range []string{"", "   ", "\t"} {
		if _, ok := DecodeLine(line); ok {
			t.Fatalf("line %q should produce no event", line)
		}
	}
}

func TestDecodeLineStructuredKinds(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{
			name: "start",
			line: `{"type":"start","message":"processing 12 pages","total":12}`,
			want: Event{Kind: KindStart, Message: "processing 12 pages", Total: 12},
		},
		{
			name: "stage start",
			line: `{"type":"stage-start","stage":"page-003.png","current":3,"total":12}`,
			want: Event{Kind: KindStageStart, Stage: "page-003.png", Current: 3, Total: 12},
		},
		{
			name: "stage start underscore alias",
			line: `{"type":"stage_start","stage":"page-004.png"}`,
			want: Event{Kind: KindStageStart, Stage: "page-004.png"},
		},
		{
			name: "file start alias maps stage from file",
			line: `{"type":"file_start","file":"scan-001.tif","current":1,"total":4}`,
			want: Event{Kind: KindStageStart, Stage: "scan-001.tif", Current: 1, Total: 4},
		},
		{
			name: "stage complete",
			line: `{"type":"stage_complete","file":"scan-001.tif","current":1,"total":4}`,
			want: Event{Kind: KindStageComplete, Stage: "scan-001.tif", Current: 1, Total: 4},
		},
		{
			name: "progress with explicit percentage",
			line: `{"type":"progress","percentage":37.5,"message":"deskewing"}`,
			want: Event{Kind: KindProgress, Percent: 37.5, Message: "deskewing"},
		},
		{
			name: "progress derives percent from counts",
			line: `{"type":"progress","current":2,"total":8}`,
			want: Event{Kind: KindProgress, Current: 2, Total: 8, Percent: 25},
		},
		{
			name: "progress without any ratio reports unknown",
			line: `{"type":"progress","message":"working"}`,
			want: Event{Kind: KindProgress, Message: "working", Percent: -1},
		},
		{
			name: "complete",
			line: `{"type":"complete","message":"done","total":12,"bytes_saved":123456,"errors":0}`,
			want: Event{Kind: KindComplete, Message: "done", Total: 12, BytesSaved: 123456, Percent: 100},
		},
		{
			name: "error",
			line: `{"type":"error","message":"page 7 unreadable"}`,
			want: Event{Kind: KindError, Message: "page 7 unreadable"},
		},
		{
			name: "error without message gets a fallback",
			line: `{"type":"error"}`,
			want: Event{Kind: KindError, Message: "worker reported an error"},
		},
		{
			name: "kind discriminator accepted",
			line: `{"kind":"progress","percentage":10}`,
			want: Event{Kind: KindProgress, Percent: 10},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DecodeLine(tc.line)
			if !ok {
				t.Fatal("expected an event")
			}
			if got != tc.want {
				t.Fatalf("event = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDecodeLineFallsBackToRaw(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"plain text", "Loading OpenCV..."},
		{"malformed json", `{"type":"progress",`},
		{"json number", "42"},
		{"json string", `"hello"`},
		{"json array", `[1,2,3]`},
		{"object without discriminator", `{"stage":"x","current":1}`},
		{"unknown type", `{"type":"telemetry","value":1}`},
		{"null", "null"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DecodeLine(tc.line)
			if !ok {
				t.Fatal("expected a raw event, not a dropped line")
			}
			if got.Kind != KindRaw {
				t.Fatalf("kind = %q, want raw", got.Kind)
			}
			if got.Raw != tc.line {
				t.Fatalf("raw = %q, want verbatim line", got.Raw)
			}
		})
	}
}

func TestDecodeLineTrimsSurroundingWhitespace(t *testing.T) {
	got, ok := DecodeLine("  {\"type\":\"start\"}  ")
	if !ok || got.Kind != KindStart {
		t.Fatalf("event = %+v, ok = %v", got, ok)
	}
}

func TestDecodeLineClampsPercent(t *testing.T) {
	got, ok := DecodeLine(`{"type":"progress","percentage":150}`)
	if !ok || got.Percent != 100 {
		t.Fatalf("percent = %v, want clamp to 100", got.Percent)
	}
	got, ok = DecodeLine(`{"type":"progress","percentage":-3}`)
	if !ok || got.Percent != 0 {
		t.Fatalf("percent = %v, want clamp to 0", got.Percent)
	}
}

func TestDecodeLineCaseInsensitiveDiscriminator(t *testing.T) {
	got, ok := DecodeLine(`{"type":"Stage-Start","stage":"a"}`)
	if !ok || got.Kind != KindStageStart {
		t.Fatalf("event = %+v, ok = %v", got, ok)
	}
}
