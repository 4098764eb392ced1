package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/immxrtalbeast/huddle/internal/config"
	"github.com/spf13/cobra"
)

func newRoomCommand() *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "new-room",
		Short: "Ask the relay for a fresh room id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return fmt.Errorf("read client config: %w", err)
			}
			if apiURL != "" {
				cfg.APIURL = apiURL
			}

			roomID, err := createRoom(cmd.Context(), http.DefaultClient, cfg.APIURL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), roomID)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", "", "relay REST base URL (default from HUDDLE_API_URL)")
	return cmd
}

func createRoom(ctx context.Context, client *http.Client, apiURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(apiURL, "/")+"/rooms", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		RoomID string `json:"room_id"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode room response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create room: %s: %s", resp.Status, body.Error)
	}
	return body.RoomID, nil
}
