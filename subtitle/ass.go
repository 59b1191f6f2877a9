// Package subtitle renders caption data as an Advanced SubStation Alpha (.ass) script.
package subtitle

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
)

// Caption is one timed line, times in seconds.
type Caption struct {
	From    float64 `json:"from"`
	To      float64 `json:"to"`
	Content string  `json:"content"`
}

// Data is a caption track with its display hints, as served by the video site.
type Data struct {
	FontSize        *float64  `json:"font_size"`        // ratio of the base font size; nil means 0.4
	FontColor       string    `json:"font_color"`       // "#RRGGBB"; empty means white
	BackgroundAlpha *float64  `json:"background_alpha"` // 0..1; nil means 0.5
	BackgroundColor string    `json:"background_color"` // "#RRGGBB"; empty means black
	Body            []Caption `json:"body"`
}

// Source names where the captions came from.
type Source struct {
	PageTitle string // page title, site suffix allowed
	Language  string // language label, e.g. "English (US)"; may be empty
	URL       string
}

const (
	baseFontSize = 50
	playResX     = 560
	playResY     = 420
)

var (
	colorPattern = regexp.MustCompile(`^#?(\w{6})$`)
	siteSuffix   = regexp.MustCompile(`_哔哩哔哩 \(゜-゜\)つロ 干杯~-bilibili$`)
)

// TrimSiteSuffix strips the site name bilibili appends to page titles.
func TrimSiteSuffix(title string) string {
	return siteSuffix.ReplaceAllString(title, "")
}

// BuildASS renders data as an ASS script with CRLF line endings. It fails only on
// malformed colours or negative times.
func BuildASS(data *Data, src Source) (string, error) {
	header, err := buildHeader(data, src)
	if err != nil {
		return "", err
	}

	lines := header
	for i, c := range data.Body {
		line, err := buildLine(c)
		if err != nil {
			return "", fmt.Errorf("caption %d: %w", i, err)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\r\n"), nil
}

func buildHeader(data *Data, src Source) ([]string, error) {
	textColor, err := formatColor(data.FontColor, "#FFFFFF")
	if err != nil {
		return nil, fmt.Errorf("font color: %w", err)
	}
	bgColor, err := formatColor(data.BackgroundColor, "#000000")
	if err != nil {
		return nil, fmt.Errorf("background color: %w", err)
	}

	ratio := 0.4
	if data.FontSize != nil {
		ratio = *data.FontSize
	}
	bgOpacity := 0.5
	if data.BackgroundAlpha != nil {
		bgOpacity = *data.BackgroundAlpha
	}

	fontSize := roundHalfUp(ratio * baseFontSize)
	textAlpha := formatOpacity(1)
	bgAlpha := formatOpacity(bgOpacity)

	title := fmt.Sprintf("%s %s字幕", TrimSiteSuffix(src.PageTitle), src.Language)
	original := "Generated by Xmader/bilitwin based on " + src.URL

	return []string{
		"[Script Info]",
		"Title: " + title,
		"Original Script: " + original,
		"ScriptType: v4.00+",
		"Collisions: Normal",
		fmt.Sprintf("PlayResX: %d", playResX),
		fmt.Sprintf("PlayResY: %d", playResY),
		"Timer: 100.0000",
		"",
		"[V4+ Styles]",
		"Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding",
		fmt.Sprintf("Style: Fix,Arial,%d,&H%s%s,&H%s%s,&H%s000000,&H%s%s,0,0,0,0,100,100,0,0,1,2,0,2,20,20,2,0",
			fontSize, textAlpha, textColor, textAlpha, textColor, textAlpha, bgAlpha, bgColor),
		"",
		"[Events]",
		"Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text",
	}, nil
}

func buildLine(c Caption) (string, error) {
	start, err := formatTimestamp(c.From)
	if err != nil {
		return "", err
	}
	end, err := formatTimestamp(c.To)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Dialogue: 0,%s,%s,Fix,,20,20,2,,%s", start, end, escapeText(c.Content)), nil
}

// formatTimestamp renders seconds as HH:MM:SS.cc, rounding half up to the centisecond.
func formatTimestamp(seconds float64) (string, error) {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "", fmt.Errorf("invalid time %v", seconds)
	}
	cs := roundHalfUp(seconds * 100)
	h := cs / 360000
	m := cs / 6000 % 60
	s := cs / 100 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%02d", h, m, s, cs%100), nil
}

// formatColor turns "#rrggbb" into "RRGGBB". Empty input yields def.
func formatColor(color, def string) (string, error) {
	if color == "" {
		color = def
	}
	m := colorPattern.FindStringSubmatch(strings.ToUpper(color))
	if m == nil {
		return "", fmt.Errorf("malformed color %q", color)
	}
	return m[1], nil
}

// formatOpacity maps opacity 0..1 to an ASS alpha byte (00 opaque, FF transparent).
func formatOpacity(opacity float64) string {
	alpha := 0xFF * (100 - opacity*100) / 100
	return fmt.Sprintf("%02X", int64(alpha)&0xFF)
}

// escapeText swaps braces for full-width ones and flattens whitespace to plain spaces.
// VSFilter does not honour escaped braces.
func escapeText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '{':
			return '｛'
		case r == '}':
			return '｝'
		case unicode.IsSpace(r) && r != '\u0085', r == '\ufeff':
			return ' '
		}
		return r
	}, s)
}

func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}
