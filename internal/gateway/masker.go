package gateway

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"gateway-service/internal/models"
)

// MaskMarker replaces every redacted value
const MaskMarker = "****"

// Masker redacts a fixed list of field names before a request or
// response reaches the log sink. It always works on a copy.
type Masker struct {
	fields map[string]struct{}
}

// NewMasker creates a masker for the given field names. Matching is case-insensitive.
func NewMasker(fields ...string) *Masker {
	m := &Masker{fields: make(map[string]struct{}, len(fields))}
	for _, f := range fields {
		m.fields[strings.ToLower(f)] = struct{}{}
	}
	return m
}

// IsMasked reports whether a field name is redacted
func (m *Masker) IsMasked(name string) bool {
	_, ok := m.fields[strings.ToLower(name)]
	return ok
}

// Mask returns a copy of data with masked fields replaced by MaskMarker
func (m *Masker) Mask(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		if m.IsMasked(k) && v != "" {
			out[k] = MaskMarker
			continue
		}
		out[k] = v
	}
	return out
}

// secretValues collects the values of masked fields from each source
func (m *Masker) secretValues(sources ...map[string]string) []string {
	seen := make(map[string]struct{})
	var values []string
	for _, src := range sources {
		for k, v := range src {
			if v == "" || !m.IsMasked(k) {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
	}
	// Longest first so a secret containing another is scrubbed whole
	sort.Slice(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })
	return values
}

// Scrub removes every occurrence of the given secret values from s
func Scrub(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, MaskMarker)
	}
	return s
}

// Record masks data and scrubs any leaked copy of a masked value from the
// remaining fields. extra supplies further secrets, e.g. stored credentials.
func (m *Masker) Record(data map[string]string, extra ...map[string]string) json.RawMessage {
	secrets := m.secretValues(append([]map[string]string{data}, extra...)...)
	masked := m.Mask(data)
	for k, v := range masked {
		masked[k] = Scrub(v, secrets)
	}
	out, err := json.Marshal(masked)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return out
}

// RecordRaw scrubs a raw body using the masked values found in the known
// maps (typically the request that produced it and its parsed form).
func (m *Masker) RecordRaw(raw string, known ...map[string]string) json.RawMessage {
	out, err := json.Marshal(map[string]string{"raw": Scrub(raw, m.secretValues(known...))})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return out
}

// LogEntry is one masked request or response record
type LogEntry struct {
	Gateway   models.GatewayType
	URL       string
	Direction models.LogDirection
	Payload   json.RawMessage
	Success   bool
}

// LogSink stores gateway log records. Implementations must not fail the caller.
type LogSink interface {
	Log(ctx context.Context, entry *LogEntry)
}

// NopSink discards log records
type NopSink struct{}

// Log does nothing
func (NopSink) Log(context.Context, *LogEntry) {}
