package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	statusHost      string
	statusPort      int
	statusSessionID string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running clio serve broker/status surface",
	Long: `Query the GET /status (or GET /sessions/{id} with --session) endpoint
of a clio serve process's status introspection surface.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusHost, "host", "127.0.0.1", "Status surface hostname")
	statusCmd.Flags().IntVarP(&statusPort, "port", "p", 4096, "Status surface port")
	statusCmd.Flags().StringVarP(&statusSessionID, "session", "s", "", "Fetch one session's summary instead of broker status")
}

func runStatus(cmd *cobra.Command, args []string) error {
	path := "/status"
	if statusSessionID != "" {
		path = "/sessions/" + statusSessionID
	}
	url := fmt.Sprintf("http://%s:%d%s", statusHost, statusPort, path)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
		return nil
	}
	fmt.Println(string(body))
	return nil
}
