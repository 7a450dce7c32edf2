package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/timeblock/internal/model"
	"github.com/rcliao/timeblock/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Manage external links referenced by tasks and blocks",
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Create or replace a link",
		Run:   runLinkAdd,
	}
	add.Flags().String("id", "", "Link ID (default: generated)")
	add.Flags().String("provider", "", "Provider: google, outlook, apple, internal")
	add.Flags().String("external-id", "", "ID in the provider's system")
	add.Flags().String("url", "", "URL")
	add.Flags().StringP("title", "t", "", "Title")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a link",
		Args:  cobra.ExactArgs(1),
		Run:   runLinkGet,
	}

	cmd.AddCommand(add, get)
	RootCmd.AddCommand(cmd)
}

func runLinkAdd(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	provider, _ := cmd.Flags().GetString("provider")
	externalID, _ := cmd.Flags().GetString("external-id")
	url, _ := cmd.Flags().GetString("url")
	title, _ := cmd.Flags().GetString("title")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	l, err := s.PutLink(cmd.Context(), store.Link{
		ID:         id,
		UserID:     getUser(),
		Provider:   model.Provider(provider),
		ExternalID: externalID,
		URL:        url,
		Title:      title,
	})
	if err != nil {
		exitErr("link", err)
	}

	b, _ := json.MarshalIndent(l, "", "  ")
	fmt.Println(string(b))
}

func runLinkGet(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	l, err := s.GetLink(cmd.Context(), getUser(), args[0])
	if err != nil {
		exitErr("get link", err)
	}

	b, _ := json.MarshalIndent(l, "", "  ")
	fmt.Println(string(b))
}
