package main

import "testing"

func TestParseConsoleLine(t *testing.T) {
	tests := []struct {
		line    string
		want    consoleCommand
		wantErr bool
	}{
		{line: "", want: consoleCommand{kind: cmdNone}},
		{line: "  gg all ", want: consoleCommand{kind: cmdSay, text: "gg all"}},
		{line: "/quit", want: consoleCommand{kind: cmdQuit}},
		{line: "/q", want: consoleCommand{kind: cmdQuit}},
		{line: "/preview", want: consoleCommand{kind: cmdPreview}},
		{line: "/barrier", want: consoleCommand{kind: cmdBarrier}},
		{line: "/release", want: consoleCommand{kind: cmdRelease}},
		{line: "/tick", want: consoleCommand{kind: cmdTick, count: 1}},
		{line: "/tick 5", want: consoleCommand{kind: cmdTick, count: 5}},
		{line: "/tick 0", wantErr: true},
		{line: "/tick x", wantErr: true},
		{line: "/resize 800 600", want: consoleCommand{kind: cmdResize, width: 800, height: 600}},
		{line: "/resize 800", wantErr: true},
		{line: "/resize a b", wantErr: true},
		{line: "/raw", wantErr: true},
		{line: "/raw 4g", wantErr: true},
		{line: "/launch", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseConsoleLine(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.kind != tt.want.kind || got.text != tt.want.text || got.count != tt.want.count ||
				got.width != tt.want.width || got.height != tt.want.height {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseConsoleRaw(t *testing.T) {
	got, err := parseConsoleLine("/raw 2343")
	if err != nil {
		t.Fatal(err)
	}
	if got.kind != cmdRaw || string(got.frame) != "#C" {
		t.Errorf("got %+v", got)
	}
}
