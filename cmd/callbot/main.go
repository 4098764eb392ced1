package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load(".env")

	cmd := &cobra.Command{
		Use:   "callbot",
		Short: "A headless participant for huddle video calls",
	}

	cmd.AddCommand(newJoinCommand(), newRoomCommand())

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}
