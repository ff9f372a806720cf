package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const defaultConfig = `# mouse support (TUI-mode only)
mouse: false
# word-wrap at width (0 for the terminal width)
width: 0

tts:
  # speech engine: auto, piper, command, google or mock
  engine: "auto"
  # voice id, name or language tag; empty for the engine default
  voice: ""
  # language used to pick a voice when none is set
  language: "en"
  # speaking rate (0.5 to 1.6) and pitch (0.5 to 2.0)
  rate: 1.0
  pitch: 1.0
  # highlight the word being spoken
  highlight: true
  # longest piece of text sent to the engine at once
  max_chunk_chars: 1800

  speed_read:
    words_per_chunk: 40
    rate: 1.4

  # reading time statistics
  stats:
    enabled: true
    # path: "~/.local/share/readaloud/stats.db"
    flush_every: "10s"

  # synthesized audio cache
  cache:
    enabled: true
    # dir: "~/.cache/readaloud/audio"
    max_size_mb: 100

  # espeak-ng, espeak or say
  command:
    # binary: "espeak-ng"
    max_spawns_per_second: 5

  piper:
    binary: "piper"
    model: "en_US-lessac-medium"
    speaker_id: 0
    sample_rate: 22050
    timeout: "30s"

  google:
    # credentials_file: "~/.config/gcloud/application_default_credentials.json"
    language_code: "en-US"
    voice_name: "en-US-Standard-C"
    sample_rate: 24000
    timeout: "10s"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the readaloud config file",
	Long:    paragraph(fmt.Sprintf("\n%s the readaloud config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("readaloud config\nreadaloud config --config path/to/config.yml\nreadaloud config show"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("readaloud", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any{
			"mouse": mouse,
			"width": width,
			"tts":   readCfg,
		}); err != nil {
			return fmt.Errorf("unable to encode config: %w", err)
		}
		return enc.Close()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
