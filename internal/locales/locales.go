package locales

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

//go:embed locales.json
var localesJSON []byte

// DefaultLocale is used when a requested locale is unknown.
const DefaultLocale = "ko"

// Messages holds every user-facing string of one locale.
type Messages struct {
	ErrorTemplate string            `json:"error_template"`
	Errors        map[string]string `json:"errors"`
	Loading       Loading           `json:"loading"`
	Share         Share             `json:"share"`
	Result        Result            `json:"result"`
}

// Loading is the copy shown while a run is in flight.
type Loading struct {
	Title      string   `json:"title"`
	IntervalMS int      `json:"interval_ms"`
	Messages   []string `json:"messages"`
}

// Share is the payload offered to the platform share sheet.
type Share struct {
	Title       string `json:"title"`
	Text        string `json:"text"`
	Filename    string `json:"filename"`
	Unsupported string `json:"unsupported"`
	Failed      string `json:"failed"`
}

// Result is the copy of the result card and of rejected session requests.
type Result struct {
	Heading           string `json:"heading"`
	Feedback          string `json:"feedback"`
	Suggestions       string `json:"suggestions"`
	Alternative       string `json:"alternative"`
	Generated         string `json:"generated"`
	InvalidTransition string `json:"invalid_transition"`
	NotFound          string `json:"not_found"`
}

var all map[string]*Messages

func init() {
	if err := json.Unmarshal(localesJSON, &all); err != nil {
		panic(fmt.Sprintf("locales: parse locales.json: %v", err))
	}
	if _, ok := all[DefaultLocale]; !ok {
		panic("locales: default locale missing")
	}
}

// Get returns the messages for locale, falling back to Korean.
func Get(locale string) *Messages {
	key := strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(key, "-_"); i > 0 {
		key = key[:i]
	}
	if m, ok := all[key]; ok {
		return m
	}
	return all[DefaultLocale]
}

// Available lists the loaded locale codes in order.
func Available() []string {
	codes := make([]string, 0, len(all))
	for code := range all {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ErrorMessage renders the user-facing error for an error kind.
func (m *Messages) ErrorMessage(kind string) string {
	reason, ok := m.Errors[kind]
	if !ok {
		reason = m.Errors["unknown"]
	}
	return fmt.Sprintf(m.ErrorTemplate, reason)
}

// Interval is how long each loading message stays on screen.
func (l Loading) Interval() time.Duration {
	if l.IntervalMS <= 0 {
		return 2500 * time.Millisecond
	}
	return time.Duration(l.IntervalMS) * time.Millisecond
}

// MessageAt returns the loading message shown after elapsed time in loading.
func (l Loading) MessageAt(elapsed time.Duration) string {
	if len(l.Messages) == 0 {
		return ""
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return l.Messages[int(elapsed/l.Interval())%len(l.Messages)]
}
