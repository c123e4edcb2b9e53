package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vexdb/vexdb/pkg/api/rest"
	"github.com/vexdb/vexdb/pkg/api/rest/middleware"
)

var (
	serverURL string
	authToken string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "vexdb-cli",
	Short: "Command-line client for the vexdb HTTP API",
	Long: `vexdb-cli talks to a running vexdb server over its HTTP API:
create collections, insert and search vectors, inspect stats and manage
snapshots.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "server base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token (if the server requires auth)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(createCollectionCmd)
	rootCmd.AddCommand(listCollectionsCmd)
	rootCmd.AddCommand(dropCollectionCmd)
	rootCmd.AddCommand(insertCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(tokenCmd)

	createCollectionCmd.Flags().Int("dimension", 0, "vector dimension (required)")
	createCollectionCmd.Flags().String("metric", "euclidean", "distance metric: euclidean, dot, cosine")
	createCollectionCmd.Flags().Int("m", 0, "graph degree parameter M (0 uses the server default)")
	createCollectionCmd.Flags().Int("ef-construction", 0, "construction beam width (0 uses the server default)")
	createCollectionCmd.Flags().String("precision", "", "storage precision: float32 or float16")
	createCollectionCmd.MarkFlagRequired("dimension")

	insertCmd.Flags().String("vector", "", "vector as a JSON array (required)")
	insertCmd.Flags().String("metadata", "", "metadata as a JSON object")
	insertCmd.MarkFlagRequired("vector")

	searchCmd.Flags().String("vector", "", "query vector as a JSON array (required)")
	searchCmd.Flags().IntP("top-k", "k", 10, "number of neighbors to return")
	searchCmd.Flags().Int("ef", 0, "search beam width (0 uses the server default)")
	searchCmd.Flags().String("filter", "", "metadata equality filter as a JSON object")
	searchCmd.MarkFlagRequired("vector")

	deleteCmd.Flags().Uint32("id", 0, "vector id to delete (required)")
	deleteCmd.MarkFlagRequired("id")

	tokenCmd.Flags().String("secret", "", "signing secret (required)")
	tokenCmd.Flags().String("subject", "cli", "token subject")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	tokenCmd.MarkFlagRequired("secret")
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp rest.HealthResponse
		if err := call(http.MethodGet, "/v1/health", nil, &resp); err != nil {
			return err
		}
		fmt.Printf("status: %s, collections: %d\n", resp.Status, resp.Collections)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [collection]",
	Short: "Show index statistics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/v1/stats"
		if len(args) == 1 {
			path += "/" + args[0]
		}
		var raw json.RawMessage
		if err := call(http.MethodGet, path, nil, &raw); err != nil {
			return err
		}
		return printJSON(raw)
	},
}

var createCollectionCmd = &cobra.Command{
	Use:   "create-collection [name]",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dimension, _ := cmd.Flags().GetInt("dimension")
		metric, _ := cmd.Flags().GetString("metric")
		m, _ := cmd.Flags().GetInt("m")
		efc, _ := cmd.Flags().GetInt("ef-construction")
		precision, _ := cmd.Flags().GetString("precision")

		var resp rest.CreateCollectionResponse
		err := call(http.MethodPost, "/v1/collections", rest.CreateCollectionRequest{
			Name:           args[0],
			Dimension:      dimension,
			Metric:         metric,
			M:              m,
			EfConstruction: efc,
			Precision:      precision,
		}, &resp)
		if err != nil {
			return err
		}
		fmt.Printf("created collection %s (id %s)\n", resp.Name, resp.ID)
		return nil
	},
}

var listCollectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List collections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp rest.ListCollectionsResponse
		if err := call(http.MethodGet, "/v1/collections", nil, &resp); err != nil {
			return err
		}
		for _, name := range resp.Collections {
			fmt.Println(name)
		}
		return nil
	},
}

var dropCollectionCmd = &cobra.Command{
	Use:   "drop-collection [name]",
	Short: "Drop a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp rest.StatusResponse
		if err := call(http.MethodDelete, "/v1/collections/"+args[0], nil, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Status)
		return nil
	},
}

var insertCmd = &cobra.Command{
	Use:   "insert [collection]",
	Short: "Insert a vector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		metadataStr, _ := cmd.Flags().GetString("metadata")

		var vector []float32
		if err := json.Unmarshal([]byte(vectorStr), &vector); err != nil {
			return fmt.Errorf("parsing vector: %w", err)
		}
		var metadata map[string]string
		if metadataStr != "" {
			if err := json.Unmarshal([]byte(metadataStr), &metadata); err != nil {
				return fmt.Errorf("parsing metadata: %w", err)
			}
		}

		var resp rest.InsertResponse
		err := call(http.MethodPost, "/v1/vectors", rest.InsertRequest{
			Collection: args[0],
			Vector:     vector,
			Metadata:   metadata,
		}, &resp)
		if err != nil {
			return err
		}
		fmt.Printf("inserted id %d\n", resp.ID)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [collection]",
	Short: "Search for nearest neighbors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		k, _ := cmd.Flags().GetInt("top-k")
		ef, _ := cmd.Flags().GetInt("ef")
		filterStr, _ := cmd.Flags().GetString("filter")

		var vector []float32
		if err := json.Unmarshal([]byte(vectorStr), &vector); err != nil {
			return fmt.Errorf("parsing vector: %w", err)
		}
		var filter map[string]string
		if filterStr != "" {
			if err := json.Unmarshal([]byte(filterStr), &filter); err != nil {
				return fmt.Errorf("parsing filter: %w", err)
			}
		}

		var resp rest.SearchResponse
		err := call(http.MethodPost, "/v1/vectors/search", rest.SearchRequest{
			Collection: args[0],
			Vector:     vector,
			K:          k,
			Ef:         ef,
			Filter:     filter,
		}, &resp)
		if err != nil {
			return err
		}
		for i, r := range resp.Results {
			fmt.Printf("[%d] id=%d distance=%.6f", i+1, r.ID, r.Distance)
			if len(r.Metadata) > 0 {
				meta, _ := json.Marshal(r.Metadata)
				fmt.Printf(" metadata=%s", meta)
			}
			fmt.Println()
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [collection]",
	Short: "Delete a vector by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetUint32("id")

		var resp rest.StatusResponse
		err := call(http.MethodPost, "/v1/vectors/delete", rest.DeleteRequest{
			Collection: args[0],
			ID:         id,
		}, &resp)
		if err != nil {
			return err
		}
		fmt.Println(resp.Status)
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [collection] [file]",
	Short: "Download a collection snapshot to a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := send(http.MethodGet, "/v1/snapshot?collection="+args[0], nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return apiError(resp)
		}

		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := io.Copy(f, resp.Body)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %d bytes to %s\n", n, args[1])
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [collection] [file]",
	Short: "Restore a collection from a snapshot file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		resp, err := send(http.MethodPost, "/v1/snapshot?collection="+args[0], f)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return apiError(resp)
		}
		fmt.Println("restored")
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a bearer token for a server with auth enabled",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := middleware.GenerateToken(subject, nil, secret, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

// send performs an HTTP request against the server.
func send(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	client := &http.Client{Timeout: timeout}
	return client.Do(req)
}

// call performs a JSON request/response round trip.
func call(method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	resp, err := send(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	var apiErr rest.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}

func printJSON(raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	fmt.Println(buf.String())
	return nil
}
