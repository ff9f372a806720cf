package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/clarityread/readaloud/tts"
	"github.com/clarityread/readaloud/tts/engines"
)

var voicesCmd = &cobra.Command{
	Use:     "voices [QUERY]",
	Short:   "List the voices of the speech engine",
	Long:    paragraph(fmt.Sprintf("\nList the voices of the configured engine, %s by an optional query.", keyword("fuzzy filtered"))),
	Example: paragraph("readaloud voices\nreadaloud voices --engine piper\nreadaloud voices en-gb"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := engines.New(cmd.Context(), readCfg, log.Default().WithPrefix("engine"))
		if err != nil {
			return err
		}
		defer engines.Close(engine) //nolint:errcheck

		voices := engine.Voices()
		if len(voices) == 0 {
			return fmt.Errorf("the %s engine does not list its voices", readCfg.Engine)
		}

		query := ""
		if len(args) > 0 {
			query = args[0]
		}
		matched := filterVoices(voices, query)
		if len(matched) == 0 {
			return fmt.Errorf("no voice matches %q", query)
		}
		printVoices(cmd.OutOrStdout(), matched, engines.DefaultVoice(voices))
		return nil
	},
}

// voiceSource lets fuzzy search id, name and language at once.
type voiceSource []tts.Voice

func (v voiceSource) String(i int) string {
	return v[i].ID + " " + v[i].Name + " " + v[i].Language
}

func (v voiceSource) Len() int { return len(v) }

// filterVoices returns the voices matching query, best match first. An
// empty query matches every voice in engine order.
func filterVoices(voices []tts.Voice, query string) []tts.Voice {
	if query == "" {
		return voices
	}
	matches := fuzzy.FindFrom(query, voiceSource(voices))
	out := make([]tts.Voice, 0, len(matches))
	for _, m := range matches {
		out = append(out, voices[m.Index])
	}
	return out
}

func printVoices(w io.Writer, voices []tts.Voice, def tts.Voice) {
	for _, v := range voices {
		mark := "  "
		if v.ID == def.ID {
			mark = keyword("* ")
		}
		fmt.Fprintf(w, "%s%-28s %s\n", mark, v.ID, v) //nolint:errcheck
	}
}
