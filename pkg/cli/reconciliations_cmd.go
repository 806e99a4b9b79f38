package cli

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"agent-bff/internal/domain"
)

func newReconciliationsCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reconciliations",
		Aliases: []string{"recon"},
		Short:   "Inspect temp-bucket reconciliation",
	}
	cmd.AddCommand(newReconciliationsListCmd(client))
	return cmd
}

func newReconciliationsListCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List reconciliation tasks still waiting on their datasource",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := client.Do(http.MethodGet, "/reconciliations", nil, nil)
			if err != nil {
				return err
			}
			var body struct {
				Tasks []domain.ReconciliationView `json:"tasks"`
			}
			if err := decodeResponse(resp, &body); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, body.Tasks)
			}
			rows := make([][]string, 0, len(body.Tasks))
			for _, t := range body.Tasks {
				rows = append(rows, []string{
					t.ID,
					t.ResourceID,
					t.TempBucketName,
					string(t.State),
					strconv.Itoa(t.Polls),
					t.LastStatus,
					time.Since(t.CreatedAt).Round(time.Second).String(),
				})
			}
			PrintTable(os.Stdout, []string{"id", "datasource", "temp bucket", "state", "polls", "last status", "age"}, rows)
			return nil
		},
	}
}
