package main

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
)

func TestHandleFrame(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		frame   string
		want    string
		wantEnd bool
	}{
		{
			name:  "position in annotation order",
			frame: `{"type":"position","data":{"start":4,"end":6,"values":{"rpm":"3.75 krpm","count":"2","phase":"2","zz":"x"}}}`,
			want:  "[4-6] Phase=2  Count=2  Rate=3.75 krpm  zz=x\n",
		},
		{
			name:  "init",
			frame: `{"type":"stream_init","data":{"sample_rate":1000}}`,
			want:  "[INIT] {\"sample_rate\":1000}\n",
		},
		{
			name:    "end",
			frame:   `{"type":"stream_end","data":{"edges":2}}`,
			want:    "[END] {\"edges\":2}\n",
			wantEnd: true,
		},
		{
			name:  "not json",
			frame: `hello`,
			want:  "[TEXT] hello\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			end := handleFrame(&buf, []byte(tt.frame), logger)
			if end != tt.wantEnd {
				t.Errorf("end = %v, want %v", end, tt.wantEnd)
			}
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
