// Package notice implements the transient, toast-style messages shown to the
// user. Components raise notices by code; the text is localized from a
// golang.org/x/text catalog when the notice is raised.
package notice

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Level is the visual severity of a notice
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Code identifies what happened. It doubles as the catalog key.
type Code string

const (
	CodeAddressLookupFailed    Code = "address_lookup_failed"
	CodeRouteFailed            Code = "route_failed"
	CodeTrackingStarting       Code = "tracking_starting"
	CodeTrackingStopped        Code = "tracking_stopped"
	CodePositionUpdated        Code = "position_updated"
	CodePositionFailed         Code = "position_failed"
	CodeGeolocationUnsupported Code = "geolocation_unsupported"
	CodeEnableTrackingFirst    Code = "enable_tracking_first"
)

// Notice is one message waiting to be shown.
type Notice struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Code    Code      `json:"code"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier is what components need to surface a notice.
type Notifier interface {
	Raise(level Level, code Code) Notice
}

var messages = map[Code]map[language.Tag]string{
	CodeAddressLookupFailed: {
		language.Persian: "خطا در دریافت آدرس",
		language.English: "Address lookup failed",
	},
	CodeRouteFailed: {
		language.Persian: "خطا در دریافت مسیر",
		language.English: "Route lookup failed",
	},
	CodeTrackingStarting: {
		language.Persian: "در حال دریافت موقعیت شما...",
		language.English: "Getting your location...",
	},
	CodeTrackingStopped: {
		language.Persian: "پایش موقعیت متوقف شد",
		language.English: "Location tracking stopped",
	},
	CodePositionUpdated: {
		language.Persian: "موقعیت شما به‌روزرسانی شد",
		language.English: "Your location was updated",
	},
	CodePositionFailed: {
		language.Persian: "خطا در دریافت موقعیت",
		language.English: "Could not get your location",
	},
	CodeGeolocationUnsupported: {
		language.Persian: "مرورگر شما از قابلیت موقعیت‌یابی پشتیبانی نمی‌کند",
		language.English: "Your browser does not support geolocation",
	},
	CodeEnableTrackingFirst: {
		language.Persian: "لطفاً ابتدا دکمه پایش موقعیت را فعال کنید",
		language.English: "Please enable location tracking first",
	},
}

var (
	supported = []language.Tag{language.Persian, language.English}
	matcher   = language.NewMatcher(supported)
	cat       = buildCatalog()
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for code, byLang := range messages {
		for tag, text := range byLang {
			if err := b.SetString(tag, string(code), text); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Match picks the supported language closest to lang, defaulting to Persian
// for anything unparseable.
func Match(lang string) language.Tag {
	if lang == "" {
		return language.Persian
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return language.Persian
	}
	_, idx, confidence := matcher.Match(tag)
	if confidence == language.No {
		return language.English
	}
	return supported[idx]
}

const defaultCapacity = 50

// Feed collects notices for one session until the browser drains them. When
// the feed is full the oldest notice is dropped.
type Feed struct {
	mu       sync.Mutex
	printer  *message.Printer
	lang     language.Tag
	pending  []Notice
	capacity int
	now      func() time.Time
}

// NewFeed creates a feed that localizes into lang.
func NewFeed(lang language.Tag) *Feed {
	return &Feed{
		printer:  message.NewPrinter(lang, message.Catalog(cat)),
		lang:     lang,
		capacity: defaultCapacity,
		now:      time.Now,
	}
}

// Language returns the feed language.
func (f *Feed) Language() language.Tag {
	return f.lang
}

// Text returns the localized text for code.
func (f *Feed) Text(code Code) string {
	return f.printer.Sprintf(string(code))
}

// Raise queues a notice and returns it.
func (f *Feed) Raise(level Level, code Code) Notice {
	n := Notice{
		ID:      uuid.NewString(),
		Level:   level,
		Code:    code,
		Message: f.Text(code),
		Time:    f.now(),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) >= f.capacity {
		f.pending = f.pending[1:]
	}
	f.pending = append(f.pending, n)
	return n
}

// Pending returns the queued notices without removing them.
func (f *Feed) Pending() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notice, len(f.pending))
	copy(out, f.pending)
	return out
}

// Drain returns and removes the queued notices.
func (f *Feed) Drain() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}

// Count returns how many queued notices carry code.
func (f *Feed) Count(code Code) int {
	n := 0
	for _, p := range f.Pending() {
		if p.Code == code {
			n++
		}
	}
	return n
}
