package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tendant/community-admin/pkg/community"
)

func newSignPutCommand(rt *runtime) *cobra.Command {
	var (
		key, contentType string
		expiresIn        int
		metadata         map[string]string
	)

	cmd := &cobra.Command{
		Use:   "sign-put",
		Short: "Issue a signed upload URL",
		Example: `  community-admin sign-put --key uploads/photo.jpg --content-type image/jpeg
  community-admin sign-put --key uploads/a.pdf --content-type application/pdf --expires-in 60 --meta owner=u1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, svc, closeStores, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()

			req := community.GenerateSignedPutURLRequest{
				Key:         key,
				ContentType: contentType,
				Metadata:    metadata,
			}
			if cmd.Flags().Changed("expires-in") {
				req.ExpiresInSeconds = community.Seconds(expiresIn)
			}

			result, err := svc.GenerateSignedPutURL(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "object key to upload to")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type the upload must carry")
	cmd.Flags().IntVar(&expiresIn, "expires-in", 0, "lifetime in seconds (default from config)")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "user metadata bound to the upload, key=value")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("content-type")
	return cmd
}

func newSignGetCommand(rt *runtime) *cobra.Command {
	var (
		artifactID string
		expiresIn  int
	)

	cmd := &cobra.Command{
		Use:   "sign-get",
		Short: "Issue a signed download URL for an artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, svc, closeStores, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()

			var expiry *int
			if cmd.Flags().Changed("expires-in") {
				expiry = community.Seconds(expiresIn)
			}

			signed, err := svc.GenerateArtifactDownloadURL(cmd.Context(), artifactID, expiry)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), signed)
		},
	}

	cmd.Flags().StringVar(&artifactID, "artifact", "", "artifact id")
	cmd.Flags().IntVar(&expiresIn, "expires-in", 0, "lifetime in seconds (default from config)")
	_ = cmd.MarkFlagRequired("artifact")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
