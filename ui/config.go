package ui

// Config contains TUI-specific configuration.
type Config struct {
	EnableMouse    bool   `env:"READALOUD_MOUSE"`
	MaxWidth       uint   `env:"READALOUD_WIDTH"           envDefault:"80"`
	HighlightColor string `env:"READALOUD_HIGHLIGHT_COLOR" envDefault:"226"`
	AutoStart      bool   `env:"READALOUD_AUTOSTART"       envDefault:"true"`

	// Reading options, set from flags and the config file.
	Voice         string
	Rate          float64
	Pitch         float64
	Highlight     bool
	SpeedRead     bool
	SpeedReadRate float64
	WordsPerChunk int
}
