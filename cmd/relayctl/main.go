package main

import (
    "log"

    "github.com/spf13/cobra"

    relaycli "github.com/CePeU/foundryvtt-rest-api/pkg/cli"
)

func main() {
    if err := newRoot().Execute(); err != nil {
        log.Fatal(err)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "relayctl",
        Short:         "foundry relay agent management CLI",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    // Attach all relay commands from pkg/cli for reuse in services
    relaycli.AddAll(root)
    return root
}
