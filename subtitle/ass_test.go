package subtitle

import (
	"strings"
	"testing"
)

func TestBuildASS(t *testing.T) {
	data := &Data{
		Body: []Caption{
			{From: 0, To: 1.5, Content: "Hi"},
			{From: 3725.5, To: 3727.125, Content: "{\\an8}top\nline"},
		},
	}
	src := Source{
		PageTitle: "Some Video_哔哩哔哩 (゜-゜)つロ 干杯~-bilibili",
		Language:  "English",
		URL:       "https://www.bilibili.com/video/av1",
	}

	out, err := BuildASS(data, src)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(out, "\r\n")

	want := map[int]string{
		0:  "[Script Info]",
		1:  "Title: Some Video English字幕",
		2:  "Original Script: Generated by Xmader/bilitwin based on https://www.bilibili.com/video/av1",
		5:  "PlayResX: 560",
		6:  "PlayResY: 420",
		9:  "[V4+ Styles]",
		11: "Style: Fix,Arial,20,&H00FFFFFF,&H00FFFFFF,&H00000000,&H7F000000,0,0,0,0,100,100,0,0,1,2,0,2,20,20,2,0",
		13: "[Events]",
		15: "Dialogue: 0,00:00:00.00,00:00:01.50,Fix,,20,20,2,,Hi",
		16: "Dialogue: 0,01:02:05.50,01:02:07.13,Fix,,20,20,2,,｛\\an8｝top line",
	}
	if len(lines) != 17 {
		t.Fatalf("expect 17 lines, got %d:\n%s", len(lines), out)
	}
	for i, line := range want {
		if lines[i] != line {
			t.Errorf("line %d:\n got %q\nwant %q", i, lines[i], line)
		}
	}
}

func TestStyleHints(t *testing.T) {
	alpha, size := 0.0, 0.5
	data := &Data{FontSize: &size, FontColor: "#ff00aa", BackgroundAlpha: &alpha, BackgroundColor: "123456"}
	out, err := BuildASS(data, Source{})
	if err != nil {
		t.Fatal(err)
	}
	style := "Style: Fix,Arial,25,&H00FF00AA,&H00FF00AA,&H00000000,&HFF123456,"
	if !strings.Contains(out, style) {
		t.Fatalf("expect style prefix %q in:\n%s", style, out)
	}
	if !strings.Contains(out, "Title:  字幕") {
		t.Fatalf("expect empty title and language to keep their separators:\n%s", out)
	}
}

func TestFontSizeDefault(t *testing.T) {
	zero := 0.0
	cases := []struct {
		name string
		size *float64
		want string
	}{
		{"absent", nil, "Style: Fix,Arial,20,"},
		{"zero", &zero, "Style: Fix,Arial,0,"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := BuildASS(&Data{FontSize: tc.size}, Source{})
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out, tc.want) {
				t.Fatalf("expect %q in:\n%s", tc.want, out)
			}
		})
	}
}

func TestBuildASSErrors(t *testing.T) {
	cases := []struct {
		name string
		data *Data
	}{
		{"short color", &Data{FontColor: "#fff"}},
		{"bad background", &Data{BackgroundColor: "#12345g7"}},
		{"negative time", &Data{Body: []Caption{{From: -1, To: 1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := BuildASS(tc.data, Source{}); err == nil {
				t.Fatal("expect error")
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	cases := map[float64]string{
		0:       "00:00:00.00",
		1.5:     "00:00:01.50",
		0.125:   "00:00:00.13",
		59.994:  "00:00:59.99",
		59.996:  "00:01:00.00",
		36000.5: "10:00:00.50",
	}
	for in, want := range cases {
		got, err := formatTimestamp(in)
		if err != nil || got != want {
			t.Errorf("formatTimestamp(%v) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestEscapeText(t *testing.T) {
	if got := escapeText("a{b}c\td\u3000e"); got != "a｛b｝c d e" {
		t.Fatalf("unexpected escape %q", got)
	}
	// NEL is not whitespace to the caption source, so it passes through
	if got := escapeText("a\u0085b\ufeffc"); got != "a\u0085b c" {
		t.Fatalf("unexpected escape %q", got)
	}
}

func TestTrimSiteSuffix(t *testing.T) {
	if got := TrimSiteSuffix("av1_哔哩哔哩 (゜-゜)つロ 干杯~-bilibili"); got != "av1" {
		t.Fatalf("expect suffix stripped, got %q", got)
	}
	if got := TrimSiteSuffix("plain title"); got != "plain title" {
		t.Fatalf("expect title untouched, got %q", got)
	}
}
