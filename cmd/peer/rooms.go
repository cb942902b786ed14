package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"reading-room/infrastructure/server"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List reading rooms and their live member count",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		rooms, err := fetchRooms(cfg.APIURL)
		if err != nil {
			return err
		}
		renderRooms(rooms)
		return nil
	},
}

func fetchRooms(apiURL string) ([]server.RoomView, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Get(apiURL + "/rooms")
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list rooms: %s", resp.Status)
	}
	var rooms []server.RoomView
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("malformed room list: %w", err)
	}
	return rooms, nil
}

func renderRooms(rooms []server.RoomView) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Room", "Name", "Members"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, room := range rooms {
		table.Append([]string{room.ID, room.Name, strconv.Itoa(room.Members)})
	}
	table.Render()
}
