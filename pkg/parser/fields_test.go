package parser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/routelens/routelens/internal/model"
)

func TestScanFields(t *testing.T) {
	got := ScanFields(`a=1 b="x y (z)" c= a=2 ship="12 (Q-1)"`)
	want := Fields{"a": "2", "b": "x y (z)", "ship": "12 (Q-1)"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ScanFields() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseIDName(t *testing.T) {
	tests := []struct {
		input string
		want  model.IDName
		ok    bool
	}{
		{"12345 (Some Name)", model.IDName{ID: 12345, Name: "Some Name"}, true},
		{`"8706 (c1 (h))"`, model.IDName{ID: 8706, Name: "c1 (h)"}, true},
		{"7(x)", model.IDName{ID: 7, Name: "x"}, true},
		{"abc (x)", model.IDName{}, false},
		{"12345", model.IDName{}, false},
		{"", model.IDName{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseIDName(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseIDName(%q) = %+v, %v, want %+v, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestShipBaseName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1-sY-tH-2af", "1"},
		{"Clipper", "Clipper"},
		{"-x", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ShipBaseName(tt.input); got != tt.expected {
			t.Errorf("ShipBaseName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestExtractBase(t *testing.T) {
	tests := []struct {
		line   string
		region string
		loc    string
		timed  bool
	}{
		{"2025-12-09T22:16:09Z region=OW loc=Trade.Loop x", "OW", "Trade.Loop", true},
		{"2025-12-09T22:16:09 subregion=OW", "", "", true},
		{"region=NW no timestamp", "NW", "", false},
		{"2025-13-09T22:16:09Z bad month", "", "", false},
		{" 2025-12-09T22:16:09Z indented", "", "", false},
		{"0001-01-01T00:00:00Z region=OW year one", "OW", "", true},
	}

	for _, tt := range tests {
		base := ExtractBase(tt.line, time.UTC)
		if base.Region != tt.region || base.Loc != tt.loc {
			t.Errorf("ExtractBase(%q) region/loc = %q/%q, want %q/%q", tt.line, base.Region, base.Loc, tt.region, tt.loc)
		}
		if base.HasTimestamp() != tt.timed {
			t.Errorf("ExtractBase(%q).HasTimestamp() = %v, want %v", tt.line, base.HasTimestamp(), tt.timed)
		}
		if base.Raw != tt.line {
			t.Errorf("Raw = %q, want %q", base.Raw, tt.line)
		}
	}
}

const sampleLog = "2025-12-09T22:06:21Z region=OW loc=Trade.Loop type=regular iteration=1765310781 start at 2025-12-09 22:06:21 time\n" +
	"continuation line without timestamp\n" +
	"\n" +
	"2025-12-09T22:16:09Z region=OW type=hub iteration=1765311369 Area Tartagena (id=9155) Work Clothes stock=0 (+0) (-0) request=75\r\n" +
	"2025-12-09T22:16:10Z region=OW nothing to see\n"

func kinds(events []model.Event) []model.Kind {
	out := make([]model.Kind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind()
	}
	return out
}

func TestParseLogFile(t *testing.T) {
	events := ParseLogFile(sampleLog)

	want := []model.Kind{model.KindIterationStart, model.KindAreaStock, model.KindGeneric}
	if diff := cmp.Diff(want, kinds(events)); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}

	stock := events[1].(*model.AreaStock)
	if stock.Request != 75 {
		t.Errorf("Request = %v, want 75 (trailing CR must not break the match)", stock.Request)
	}
}

func TestParseLogFile_Empty(t *testing.T) {
	if got := ParseLogFile(""); len(got) != 0 {
		t.Errorf("ParseLogFile(\"\") returned %d events, want 0", len(got))
	}
}

func TestParseText_YearOneTimestamp(t *testing.T) {
	events := utcClassifier().ParseText("0001-01-01T00:00:00Z region=OW first line\nuntimed\n")
	if len(events) != 1 {
		t.Fatalf("ParseText() returned %d events, want 1", len(events))
	}
	if base := events[0].Common(); !base.Timestamp.IsZero() || !base.HasTimestamp() {
		t.Errorf("Base = %+v, want a timed zero instant", base)
	}
}

func TestCountKinds(t *testing.T) {
	counts := CountKinds(ParseLogFile(sampleLog + sampleLog))

	want := map[model.Kind]int{
		model.KindIterationStart: 2,
		model.KindAreaStock:      2,
		model.KindGeneric:        2,
	}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("CountKinds() mismatch (-want +got):\n%s", diff)
	}
}

func collect(t *testing.T, p *LogParser, input string) ([]model.Event, error) {
	t.Helper()
	out := make(chan model.Event)
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Parse(context.Background(), strings.NewReader(input), out)
		close(out)
	}()

	var events []model.Event
	for ev := range out {
		events = append(events, ev)
	}
	return events, <-errCh
}

func TestLogParser_MatchesParseLogFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 16 // forces lines to span several buffer fills
	cfg.Location = time.UTC

	events, err := collect(t, NewLogParser(cfg), sampleLog)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := kinds(NewClassifier(time.UTC).ParseText(sampleLog))
	if diff := cmp.Diff(want, kinds(events)); diff != "" {
		t.Errorf("streamed kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestLogParser_NoTrailingNewline(t *testing.T) {
	events, err := collect(t, NewLogParser(DefaultConfig()), "2025-12-09T22:16:10Z last")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Common().Raw != "2025-12-09T22:16:10Z last" {
		t.Errorf("Raw = %q", events[0].Common().Raw)
	}
}

func TestLogParser_KeepUntimed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeepUntimed = true

	events, err := collect(t, NewLogParser(cfg), sampleLog)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(events) != 5 {
		t.Errorf("got %d events, want 5", len(events))
	}
}

func TestLogParser_LineTooLong(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 16
	cfg.MaxLineSize = 32

	_, err := collect(t, NewLogParser(cfg), strings.Repeat("x", 100)+"\n")
	if !errors.Is(err, ErrLineTooLong) {
		t.Errorf("Parse() error = %v, want ErrLineTooLong", err)
	}
}

func TestLogParser_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan model.Event, 10)
	err := NewLogParser(DefaultConfig()).Parse(ctx, strings.NewReader(sampleLog), out)
	if !errors.Is(err, ErrContextCanceled) {
		t.Errorf("Parse() error = %v, want ErrContextCanceled", err)
	}
}
