package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"soclog/internal/integrity"
)

// NewManifestCmd groups the stand-alone manifest operations.
func NewManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Build or sign an integrity manifest for existing artifact files",
	}
	cmd.AddCommand(newManifestBuildCmd())
	cmd.AddCommand(newManifestSignCmd())
	return cmd
}

func newManifestBuildCmd() *cobra.Command {
	var hostLabel, at, out string

	cmd := &cobra.Command{
		Use:   "build FILE...",
		Short: "Hash files and write a canonical manifest.json",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var atTime *time.Time
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: must be RFC3339: %w", err)
				}
				atTime = &t
			}

			m, err := integrity.BuildManifest(args, hostLabel, atTime)
			if err != nil {
				return err
			}
			if err := integrity.WriteManifest(m, out); err != nil {
				return err
			}
			slog.Info("manifest generated", "path", out, "host", hostLabel, "files", len(m.Files))
			return nil
		},
	}

	cmd.Flags().StringVar(&hostLabel, "host-label", "", "host label recorded in the manifest")
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 generation timestamp (default: now)")
	cmd.Flags().StringVar(&out, "out", "manifest.json", "manifest output path")
	_ = cmd.MarkFlagRequired("host-label")
	return cmd
}

func newManifestSignCmd() *cobra.Command {
	var manifestPath, out, gpgKey, gpgBinary string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Create an armored detached gpg signature for a manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = manifestPath + ".sig"
			}
			if err := integrity.NewGPGSigner(gpgBinary).Sign(context.Background(), manifestPath, out, gpgKey); err != nil {
				return err
			}
			slog.Info("manifest signed", "manifest", manifestPath, "signature", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "manifest file to sign")
	cmd.Flags().StringVar(&out, "out", "", "signature output path (default: <manifest>.sig)")
	cmd.Flags().StringVar(&gpgKey, "gpg-key", "", "gpg key ID or email (default: gpg default key)")
	cmd.Flags().StringVar(&gpgBinary, "gpg-binary", integrity.DefaultGPGBinary, "gpg executable")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}
