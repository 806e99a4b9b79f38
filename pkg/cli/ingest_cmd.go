package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"agent-bff/internal/domain"
)

// ingestFlags are shared by both ingestion modes. Flags override values
// loaded from --request.
type ingestFlags struct {
	request     string
	datasetName string
	datasetType string
	description string
	project     string
	tags        []string
	params      []string
}

func (f *ingestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.request, "request", "f", "", "YAML or JSON file holding the ingestion request")
	cmd.Flags().StringVar(&f.datasetName, "dataset-name", "", "Dataset name")
	cmd.Flags().StringVar(&f.datasetType, "dataset-type", "", "Dataset type")
	cmd.Flags().StringVar(&f.description, "description", "", "Dataset description")
	cmd.Flags().StringVar(&f.project, "project", "", "Project ID (defaults to the token's project)")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "Dataset tag (repeatable)")
	cmd.Flags().StringArrayVar(&f.params, "param", nil, "Processor parameter as key=value; JSON values are decoded (repeatable)")
}

// build loads --request, if any, and applies the flags on top.
func (f *ingestFlags) build(cmd *cobra.Command) (domain.IngestionRequest, error) {
	var req domain.IngestionRequest
	if f.request != "" {
		loaded, err := loadIngestionRequest(f.request)
		if err != nil {
			return req, err
		}
		req = *loaded
	}
	if cmd.Flags().Changed("dataset-name") {
		req.DatasetName = f.datasetName
	}
	if cmd.Flags().Changed("dataset-type") {
		req.DatasetType = f.datasetType
	}
	if cmd.Flags().Changed("description") {
		req.Description = f.description
	}
	if cmd.Flags().Changed("project") {
		req.ProjectID = f.project
	}
	if len(f.tags) > 0 {
		req.Tags = f.tags
	}
	if len(f.params) > 0 {
		params, err := parseParams(f.params)
		if err != nil {
			return req, err
		}
		if req.ProcessorParams == nil {
			req.ProcessorParams = make(map[string]any, len(params))
		}
		for k, v := range params {
			req.ProcessorParams[k] = v
		}
	}
	return req, nil
}

// loadIngestionRequest reads a request file. YAML is a superset of JSON, so
// both are decoded as YAML and then mapped onto the JSON field names.
func loadIngestionRequest(path string) (*domain.IngestionRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse request file: %w", err)
	}
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("parse request file: %w", err)
	}
	var req domain.IngestionRequest
	if err := json.Unmarshal(asJSON, &req); err != nil {
		return nil, fmt.Errorf("parse request file: %w", err)
	}
	return &req, nil
}

func parseParams(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out, nil
}

func newIngestCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Create a dataset from stored or uploaded files",
	}
	cmd.AddCommand(newIngestBucketCmd(client), newIngestStagedCmd(client))
	return cmd
}

func newIngestBucketCmd(client *Client) *cobra.Command {
	var (
		flags        ingestFlags
		sourceBucket string
		files        []string
	)

	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Ingest files matched by name from a source bucket",
		Example: `  bff ingest bucket --source-bucket uploads --file sales.csv --file costs.csv \
    --dataset-name q1 --dataset-type tabular`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.build(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("source-bucket") {
				req.SourceBucket = &sourceBucket
			}
			if len(files) > 0 {
				req.FileNames = files
			}
			return runIngestion(cmd, client, "/ingestions/bucket", req)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&sourceBucket, "source-bucket", "", "Bucket to match files in (defaults to the server's configured bucket)")
	cmd.Flags().StringArrayVar(&files, "file", nil, "File name to ingest (repeatable)")
	return cmd
}

func newIngestStagedCmd(client *Client) *cobra.Command {
	var (
		flags   ingestFlags
		uploads []string
		objects []string
	)

	cmd := &cobra.Command{
		Use:   "staged",
		Short: "Ingest uploaded files and existing objects",
		Example: `  bff ingest staged --upload 0192f3c1-.../sales.csv --object raw/2024/costs.csv=costs.csv \
    --dataset-name q1 --dataset-type tabular`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.build(cmd)
			if err != nil {
				return err
			}
			staged, err := parseStagedFiles(uploads, objects)
			if err != nil {
				return err
			}
			req.StagedFiles = append(req.StagedFiles, staged...)
			return runIngestion(cmd, client, "/ingestions/staged", req)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringArrayVar(&uploads, "upload", nil, "Upload ID returned by 'bff upload', optionally ID=fileName (repeatable)")
	cmd.Flags().StringArrayVar(&objects, "object", nil, "Existing object as bucket/key, optionally bucket/key=fileName (repeatable)")
	return cmd
}

func parseStagedFiles(uploads, objects []string) ([]domain.StagedFile, error) {
	out := make([]domain.StagedFile, 0, len(uploads)+len(objects))
	for _, u := range uploads {
		id, name, _ := strings.Cut(u, "=")
		if id == "" {
			return nil, fmt.Errorf("invalid --upload %q: missing upload ID", u)
		}
		out = append(out, domain.StagedFile{UploadID: id, FileName: name})
	}
	for _, o := range objects {
		ref, name, _ := strings.Cut(o, "=")
		bucket, key, ok := strings.Cut(ref, "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("invalid --object %q: expected bucket/key", o)
		}
		out = append(out, domain.StagedFile{Bucket: bucket, Key: key, FileName: name})
	}
	return out, nil
}

func runIngestion(cmd *cobra.Command, client *Client, path string, req domain.IngestionRequest) error {
	resp, err := client.Do(http.MethodPost, path, nil, req)
	if err != nil {
		return err
	}
	var res domain.IngestionResult
	if err := decodeResponse(resp, &res); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && len(apiErr.Result) > 0 && getOutputFormat(cmd) != "json" {
			var partial domain.IngestionResult
			if json.Unmarshal(apiErr.Result, &partial) == nil {
				_, _ = fmt.Fprintln(os.Stderr, "Partial result:")
				printIngestionResult(os.Stderr, &partial)
			}
		}
		return err
	}
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(os.Stdout, res)
	}
	printIngestionResult(os.Stdout, &res)
	return nil
}

func printIngestionResult(w io.Writer, res *domain.IngestionResult) {
	pairs := [][2]string{
		{"Success", strconv.FormatBool(res.Success)},
		{"Dataset", joinIDStatus(res.DatasetID, res.DatasetStatus)},
		{"Datasource", joinIDStatus(res.DatasourceID, res.DatasourceStatus)},
		{"Temp bucket", res.TempBucket},
		{"Reconciliation armed", strconv.FormatBool(res.ReconciliationArmed)},
	}
	if m := res.Match; m != nil {
		pairs = append(pairs, [2]string{"Matched", strconv.Itoa(m.MatchedCount)})
		if len(m.UnmatchedInputFileNames) > 0 {
			pairs = append(pairs, [2]string{"Unmatched", strings.Join(m.UnmatchedInputFileNames, ", ")})
		}
	}
	for _, step := range []struct {
		name string
		res  *domain.StepResult
	}{
		{"Preparation", res.Preparation},
		{"Datasource creation", res.DatasourceCreation},
		{"Dataset creation", res.DatasetCreation},
	} {
		if step.res != nil {
			pairs = append(pairs, [2]string{step.name, stepSummary(step.res)})
		}
	}
	PrintDetail(w, pairs)
}

func joinIDStatus(id, status string) string {
	if id == "" {
		return "-"
	}
	if status == "" {
		return id
	}
	return id + " (" + status + ")"
}

func stepSummary(s *domain.StepResult) string {
	if s.Success {
		return fmt.Sprintf("ok in %dms", s.DurationMs)
	}
	if s.Error != nil {
		return fmt.Sprintf("failed: %s: %s", s.Error.ErrorCode, s.Error.ErrorMessage)
	}
	return "failed: " + s.Message
}
