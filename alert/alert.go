// Package alert defines the outbound alert payload and its construction
// options. The field set is fixed; optional fields default at construction
// time rather than at the transport layer.
package alert

// DefaultFilterKey is the catch-all delivery group
const DefaultFilterKey = "all"

// Payload defaults
const (
	DefaultFontName           = "Roboto"
	DefaultFontSize           = 64.0
	DefaultTextColor          = "#FFFFFF"
	DefaultTextHighlightColor = "#6441a5"
	DefaultTextAnimation      = "pulse"
	DefaultStartAnimation     = "fadeIn"
	DefaultEndAnimation       = "fadeOut"
	DefaultDuration           = 5.0
)

// Message is one broadcast alert. Image and Audio hold an attachment name,
// a raw path or an absolute URL until the dispatcher normalizes them.
type Message struct {
	Text               string  `json:"text"`
	FontName           string  `json:"font_name"`
	FontSize           float64 `json:"font_size"`
	TextColor          string  `json:"text_color"`
	TextHighlightColor string  `json:"text_highlight_color"`
	TextAnimation      string  `json:"text_animation"`
	StartAnimation     string  `json:"start_animation"`
	EndAnimation       string  `json:"end_animation"`
	Image              *string `json:"image"`
	Audio              *string `json:"audio"`
	AlertDuration      float64 `json:"alert_duration"`
}

// Option customizes a Message during construction
type Option func(*Message)

// New builds a Message with the given text and defaults applied
func New(text string, opts ...Option) Message {
	msg := Message{
		Text:               text,
		FontName:           DefaultFontName,
		FontSize:           DefaultFontSize,
		TextColor:          DefaultTextColor,
		TextHighlightColor: DefaultTextHighlightColor,
		TextAnimation:      DefaultTextAnimation,
		StartAnimation:     DefaultStartAnimation,
		EndAnimation:       DefaultEndAnimation,
		AlertDuration:      DefaultDuration,
	}
	for _, opt := range opts {
		opt(&msg)
	}
	return msg
}

// WithFontName sets the font family
func WithFontName(name string) Option {
	return func(m *Message) { m.FontName = name }
}

// WithFontSize sets the text size in points
func WithFontSize(size float64) Option {
	return func(m *Message) { m.FontSize = size }
}

// WithTextColor sets the text color
func WithTextColor(color string) Option {
	return func(m *Message) { m.TextColor = color }
}

// WithTextHighlightColor sets the highlight color
func WithTextHighlightColor(color string) Option {
	return func(m *Message) { m.TextHighlightColor = color }
}

// WithTextAnimation sets the text animation. Animation names are
// case-sensitive Animate.css class names.
func WithTextAnimation(name string) Option {
	return func(m *Message) { m.TextAnimation = name }
}

// WithStartAnimation sets the entry animation
func WithStartAnimation(name string) Option {
	return func(m *Message) { m.StartAnimation = name }
}

// WithEndAnimation sets the exit animation
func WithEndAnimation(name string) Option {
	return func(m *Message) { m.EndAnimation = name }
}

// WithImage attaches an image by attachment name, path or absolute URL
func WithImage(ref string) Option {
	return func(m *Message) { m.Image = &ref }
}

// WithAudio attaches an audio clip by attachment name, path or absolute URL
func WithAudio(ref string) Option {
	return func(m *Message) { m.Audio = &ref }
}

// WithDuration sets how long the alert stays on screen, in seconds
func WithDuration(seconds float64) Option {
	return func(m *Message) { m.AlertDuration = seconds }
}
