package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ent0n29/parlons/internal/workspace"
)

func newPruneCmd(opts *rootOptions) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Apply audio retention to every user workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if keep <= 0 {
				keep = cfg.AudioKeepPerKind
			}
			ws, err := workspace.New(cfg.TempAudioRoot, cfg.AudioURLPrefix, log.Sub("workspace"))
			if err != nil {
				return err
			}
			removed, err := ws.PruneAll([]string{workspace.KindReply, workspace.KindRecording}, keep)
			for _, p := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			if err != nil {
				return err
			}
			log.Info().Int("removed", len(removed)).Int("keep", keep).Msg("prune complete")
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "files to keep per kind (default AUDIO_KEEP_PER_KIND)")
	return cmd
}
