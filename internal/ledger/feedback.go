package ledger

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Marker is the literal tag that carries usefulness feedback inside ordinary
// conversation text: "[mem-feedback] layer=<name> useful=<true|false|1|0>".
// Fields are case-insensitive and comma-or-whitespace separated.
const Marker = "[mem-feedback]"

var markerRe = regexp.MustCompile(`(?i)\[mem-feedback\]([^\n]*)`)

// ApplyMarkers scans text for feedback markers and applies each one in order
// of appearance. It returns the number of markers applied; markers with a
// missing layer or unparseable useful value are ignored.
func (l *Ledger) ApplyMarkers(text string) int {
	applied := 0
	for _, m := range markerRe.FindAllStringSubmatch(text, -1) {
		layer, useful, ok := parseMarkerFields(m[1])
		if !ok {
			continue
		}
		if err := l.RecordFeedback(layer, useful); err != nil {
			l.logger.Warn("feedback marker not persisted", zap.Error(err))
		}
		applied++
	}
	return applied
}

func parseMarkerFields(rest string) (layer string, useful bool, ok bool) {
	fields := strings.FieldsFunc(rest, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})

	haveUseful := false
	for _, f := range fields {
		k, v, found := strings.Cut(f, "=")
		if !found {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "layer":
			layer = strings.TrimSpace(v)
		case "useful":
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1":
				useful = true
				haveUseful = true
			case "false", "0":
				useful = false
				haveUseful = true
			}
		}
	}
	return layer, useful, layer != "" && haveUseful
}
