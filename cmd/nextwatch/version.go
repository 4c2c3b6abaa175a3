package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/nextwatch/internal/common"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("NextWatch version %s\n", common.GetFullVersion())
		},
	}
}
