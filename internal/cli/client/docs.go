package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/spf13/cobra"
)

type documentPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	StorageKey string `json:"storage_key"`
	PageCount  int    `json:"page_count"`
	ByteSize   int64  `json:"byte_size"`
	CreatedAt  string `json:"created_at"`
}

type documentListPayload struct {
	Items   []documentPayload `json:"items"`
	Cursor  string            `json:"cursor"`
	HasMore bool              `json:"has_more"`
}

// DocsCmd returns the docs command group
func DocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage source documents",
	}

	cmd.AddCommand(docsRegisterCmd())
	cmd.AddCommand(docsListCmd())

	return cmd
}

func docsRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <path>",
		Short: "Register a PDF for processing",
		Args:  cobra.ExactArgs(1),
		RunE:  runDocsRegister,
	}

	cmd.Flags().String("name", "", "Document name (defaults to the file name)")

	return cmd
}

func runDocsRegister(cmd *cobra.Command, args []string) error {
	apiClient, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = filepath.Base(path)
	}

	resp, err := apiClient.Post("/documents", map[string]string{
		"name": name,
		"path": path,
	})
	if err != nil {
		return err
	}

	var doc documentPayload
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("Registered %s (%d pages)\n", doc.Name, doc.PageCount)
	fmt.Printf("Document ID: %s\n", doc.ID)
	return nil
}

func docsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered documents",
		Args:  cobra.NoArgs,
		RunE:  runDocsList,
	}

	cmd.Flags().String("cursor", "", "Continue listing from a previous cursor")

	return cmd
}

func runDocsList(cmd *cobra.Command, args []string) error {
	apiClient, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	path := "/documents"
	if cursor, _ := cmd.Flags().GetString("cursor"); cursor != "" {
		path += "?cursor=" + url.QueryEscape(cursor)
	}

	resp, err := apiClient.Get(path)
	if err != nil {
		return err
	}

	var list documentListPayload
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if len(list.Items) == 0 {
		fmt.Println("No documents registered")
		return nil
	}

	for _, doc := range list.Items {
		fmt.Printf("%s  %-40s  %4d pages  %s\n", doc.ID, doc.Name, doc.PageCount, doc.CreatedAt)
	}
	if list.HasMore {
		fmt.Printf("More available: cardsmith docs list --cursor %s\n", list.Cursor)
	}
	return nil
}
