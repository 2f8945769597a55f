package main

import (
	"fmt"

	distribution "github.com/shabbywu/distribution-go"
	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push <src-ref> <dst-ref>",
	Short: "copy a single image between repositories, possibly across registries",
	Args:  cobra.ExactArgs(2),
	RunE:  runPush,
}

func runPush(cmd *cobra.Command, args []string) error {
	src, err := distribution.ParseRef(args[0])
	if err != nil {
		return fmt.Errorf("parsing source reference %q: %w", args[0], err)
	}
	dst, err := distribution.ParseRef(args[1])
	if err != nil {
		return fmt.Errorf("parsing target reference %q: %w", args[1], err)
	}

	creds := map[string]ConfigHost{}
	srcClient, err := clientFor(src.Registry, creds)
	if err != nil {
		return err
	}
	tgtClient, err := clientFor(dst.Registry, creds)
	if err != nil {
		return err
	}

	if err := copyImage(srcClient, tgtClient, src.Repository, src.Reference(), dst.Repository, dst.Reference()); err != nil {
		return err
	}
	log.WithField("source", src.CommonName()).WithField("target", dst.CommonName()).Info("image pushed")
	return nil
}
