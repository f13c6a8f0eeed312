package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/community-admin/pkg/community"
)

func newDownloadCommand(rt *runtime) *cobra.Command {
	var artifactID, contentID, mediaID, output string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Stream an artifact or a content's media to a file or stdout",
		Example: `  community-admin download --artifact a1 -o logo.png
  community-admin download --content c1 --media m1 > intro.mp4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (artifactID == "") == (contentID == "" && mediaID == "") {
				return errors.New("use either --artifact or --content with --media")
			}

			_, _, svc, closeStores, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()

			var download *community.Download
			if artifactID != "" {
				download, err = svc.DownloadArtifact(cmd.Context(), artifactID)
			} else {
				download, err = svc.DownloadMedia(cmd.Context(), community.DownloadMediaRequest{
					ContentID: contentID,
					MediaID:   mediaID,
				})
			}
			if err != nil {
				var nf *community.NotFoundError
				if errors.As(err, &nf) {
					return errors.New(nf.Message)
				}
				return err
			}
			defer download.Close()

			return writeDownload(cmd.OutOrStdout(), output, download)
		},
	}

	cmd.Flags().StringVar(&artifactID, "artifact", "", "artifact id")
	cmd.Flags().StringVar(&contentID, "content", "", "content id")
	cmd.Flags().StringVar(&mediaID, "media", "", "media id within the content")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func writeDownload(stdout io.Writer, output string, download *community.Download) error {
	if output == "" {
		_, err := io.Copy(stdout, download.Body)
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	n, err := io.Copy(f, download.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	fmt.Fprintf(os.Stderr, "Saved %s (%d bytes, %s)\n", output, n, download.ContentType)
	return nil
}
