package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"agent-bff/internal/domain"
)

func newTempBucketCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "temp-bucket",
		Short: "Manage ingestion temp buckets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a temp bucket and its objects",
		Long:  "Delete a temp bucket and its objects. Deleting a bucket that no longer exists succeeds.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Do(http.MethodDelete, "/temp-buckets/"+url.PathEscape(args[0]), nil, nil)
			if err != nil {
				return err
			}
			var res domain.DeleteBucketResult
			if err := decodeResponse(resp, &res); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, res)
			}
			if !res.Existed {
				_, _ = fmt.Fprintf(os.Stdout, "Temp bucket %q did not exist\n", res.Bucket)
				return nil
			}
			_, _ = fmt.Fprintf(os.Stdout, "Deleted temp bucket %q (%d objects)\n", res.Bucket, res.DeletedObjectCount)
			return nil
		},
	})
	return cmd
}
