package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

type uploadResult struct {
	UploadID string `json:"uploadId"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

func newUploadCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload local files to the staging workspace",
		Long:  "Upload local files and print their upload IDs for use with 'bff ingest staged --upload'.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]uploadResult, 0, len(args))
			for _, path := range args {
				res, err := uploadFile(client, path)
				if err != nil {
					return err
				}
				results = append(results, *res)
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, results)
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.UploadID, r.FileName, strconv.FormatInt(r.Size, 10)})
			}
			PrintTable(os.Stdout, []string{"upload id", "file name", "size"}, rows)
			return nil
		},
	}
}

func uploadFile(client *Client, path string) (*uploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	resp, err := client.Upload(filepath.Base(path), f)
	if err != nil {
		return nil, err
	}
	var res uploadResult
	if err := decodeResponse(resp, &res); err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}
	return &res, nil
}
