// Package protocol decodes the JSON-lines progress protocol spoken by worker
// scripts on stdout.
//
// Workers emit one JSON object per line with a "type" discriminator. Lines
// that are not JSON, or that carry an unknown type, are preserved verbatim as
// raw events rather than dropped: a worker whose print statements interleave
// with structured events still surfaces everything it said.
package protocol

import (
	"encoding/json"
	"strings"
)

// Kind identifies the event variants workers can emit.
type Kind string

const (
	// KindStart announces the run and optionally the total unit count.
	KindStart Kind = "start"
	// KindStageStart marks the beginning of a named unit of work.
	KindStageStart Kind = "stage-start"
	// KindStageComplete marks the end of a named unit of work.
	KindStageComplete Kind = "stage-complete"
	// KindProgress carries a fractional completion update.
	KindProgress Kind = "progress"
	// KindComplete announces a successful finish with summary counters.
	KindComplete Kind = "complete"
	// KindError carries a worker-reported error message.
	KindError Kind = "error"
	// KindRaw wraps output that did not decode as a structured event.
	KindRaw Kind = "raw"
)

// Event is one decoded line of worker stdout.
type Event struct {
	Kind       Kind
	Stage      string
	Message    string
	Current    int
	Total      int
	Percent    float64
	BytesSaved int64
	Errors     int
	Raw        string
}

type wireEvent struct {
	Type       string   `json:"type"`
	Kind       string   `json:"kind"`
	Stage      string   `json:"stage"`
	File       string   `json:"file"`
	Message    string   `json:"message"`
	Current    *int     `json:"current"`
	Total      *int     `json:"total"`
	Percentage *float64 `json:"percentage"`
	Percent    *float64 `json:"percent"`
	BytesSaved *int64   `json:"bytes_saved"`
	Errors     *int     `json:"errors"`
}

// DecodeLine converts one line of worker stdout into an event. Blank lines
// produce no event; everything else produces exactly one. Any line that is
// not a recognizable structured event comes back as a raw event carrying the
// verbatim text.
func DecodeLine(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Event{}, false
	}

	var wire wireEvent
	if err := json.Unmarshal([]byte(trimmed), &wire); err != nil {
		return rawEvent(trimmed), true
	}

	kind, ok := kindFromWire(wire.Type, wire.Kind)
	if !ok {
		return rawEvent(trimmed), true
	}

	event := Event{Kind: kind}
	switch kind {
	case KindStart:
		event.Message = wire.Message
		event.Total = intValue(wire.Total)
	case KindStageStart, KindStageComplete:
		event.Stage = stageName(wire)
		event.Message = wire.Message
		event.Current = intValue(wire.Current)
		event.Total = intValue(wire.Total)
	case KindProgress:
		event.Stage = stageName(wire)
		event.Message = wire.Message
		event.Current = intValue(wire.Current)
		event.Total = intValue(wire.Total)
		event.Percent = percentValue(wire)
	case KindComplete:
		event.Message = wire.Message
		event.Total = intValue(wire.Total)
		event.BytesSaved = int64Value(wire.BytesSaved)
		event.Errors = intValue(wire.Errors)
		event.Percent = 100
	case KindError:
		event.Message = wire.Message
		if event.Message == "" {
			event.Message = "worker reported an error"
		}
	}
	return event, true
}

func rawEvent(line string) Event {
	return Event{Kind: KindRaw, Raw: line, Message: line}
}

// kindFromWire normalizes the discriminator. Workers written against older
// builds of the shell use "kind" instead of "type" and underscores instead of
// dashes; both are accepted.
func kindFromWire(typeTag, kindTag string) (Kind, bool) {
	tag := typeTag
	if tag == "" {
		tag = kindTag
	}
	tag = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), "_", "-")
	switch tag {
	case "start":
		return KindStart, true
	case "stage-start", "file-start":
		return KindStageStart, true
	case "stage-complete", "file-complete":
		return KindStageComplete, true
	case "progress":
		return KindProgress, true
	case "complete", "done":
		return KindComplete, true
	case "error":
		return KindError, true
	default:
		return "", false
	}
}

func stageName(wire wireEvent) string {
	if wire.Stage != "" {
		return wire.Stage
	}
	return wire.File
}

func percentValue(wire wireEvent) float64 {
	if wire.Percentage != nil {
		return clampPercent(*wire.Percentage)
	}
	if wire.Percent != nil {
		return clampPercent(*wire.Percent)
	}
	if wire.Total != nil && *wire.Total > 0 && wire.Current != nil {
		return clampPercent(float64(*wire.Current) / float64(*wire.Total) * 100)
	}
	return -1
}

func clampPercent(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func intValue(value *int) int {
	if value == nil {
		return 0
	}
	return *value
}

func int64Value(value *int64) int64 {
	if value == nil {
		return 0
	}
	return *value
}
