package main

import (
	"fmt"
	"os"

	distribution "github.com/shabbywu/distribution-go"
	"github.com/shabbywu/distribution-go/image"
	"github.com/spf13/cobra"
)

var saveCmd = &cobra.Command{
	Use:   "save <ref> <outfile>",
	Short: "pull an image and write it as a Docker v1.2 save tarball",
	Args:  cobra.ExactArgs(2),
	RunE:  runSave,
}

func runSave(cmd *cobra.Command, args []string) error {
	ref, err := distribution.ParseRef(args[0])
	if err != nil {
		return fmt.Errorf("parsing reference %q: %w", args[0], err)
	}
	client, err := clientFor(ref.Registry, map[string]ConfigHost{})
	if err != nil {
		return err
	}

	imgRef, err := image.FromImage(client, client.APIBaseURL, ref.Repository, ref.Reference(), "", "")
	if err != nil {
		return fmt.Errorf("pulling image: %w", err)
	}

	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	if err := imgRef.Save(f); err != nil {
		return fmt.Errorf("saving tarball: %w", err)
	}
	log.WithField("ref", ref.CommonName()).WithField("out", args[1]).Info("image saved")
	return nil
}
