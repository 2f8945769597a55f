package main

import (
	"fmt"

	distribution "github.com/shabbywu/distribution-go"
	"github.com/shabbywu/distribution-go/manifest"
	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull <ref>",
	Short: "fetch and print a Schema2 manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runPull,
}

func runPull(cmd *cobra.Command, args []string) error {
	ref, err := distribution.ParseRef(args[0])
	if err != nil {
		return fmt.Errorf("parsing reference %q: %w", args[0], err)
	}
	client, err := clientFor(ref.Registry, map[string]ConfigHost{})
	if err != nil {
		return err
	}

	raw, _, desc, err := (manifest.Ref{Repo: ref.Repository, Reference: ref.Reference(), Client: client, APIBaseURL: client.APIBaseURL}).Get(manifest.MediaTypeSchema2)
	if err != nil {
		return fmt.Errorf("fetching manifest: %w", err)
	}

	log.WithField("digest", desc.Digest).WithField("size", desc.Size).Info("manifest fetched")
	fmt.Println(string(raw))
	return nil
}
