package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"

	"github.com/kismetwireless/kismet-datasource-core/internal/buildinfo"
	"github.com/kismetwireless/kismet-datasource-core/internal/printer"
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "query or control sources on a running kismet-datasource serve instance",
}

var sourceAddCmd = &cobra.Command{
	Use:   "add <definition>",
	Short: "add a source by definition string",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return apiPost(c, "/datasource/add_source", map[string]string{"definition": args[0]})
	},
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "list all tracked sources",
	RunE: func(c *cobra.Command, args []string) error {
		return apiGet(c, "/datasource/all_sources")
	},
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove <uuid>",
	Short: "remove a source by uuid",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return apiPost(c, "/datasource/by-uuid/"+args[0]+"/remove_source", nil)
	},
}

var sourceProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "list capture interfaces claimed by registered drivers",
	RunE: func(c *cobra.Command, args []string) error {
		return apiGet(c, "/datasource/list_interfaces")
	},
}

func init() {
	sourceCmd.AddCommand(sourceAddCmd, sourceListCmd, sourceRemoveCmd, sourceProbeCmd)
}

// newAPIClient builds a retrying HTTP client (spec §A.4's CLI surface is a
// thin wrapper around the core's own REST API, so transient connection
// refusals during a slow startup shouldn't surface as a CLI error).
func newAPIClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 3
	return rc.StandardClient()
}

func apiBaseURL(c *cobra.Command) (string, error) {
	return c.Root().PersistentFlags().GetString("api-url")
}

func apiGet(c *cobra.Command, path string) error {
	base, err := apiBaseURL(c)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "kismet-datasource/"+buildinfo.DisplayString())
	resp, err := newAPIClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func apiPost(c *cobra.Command, path string, body interface{}) error {
	base, err := apiBaseURL(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(http.MethodPost, base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "kismet-datasource/"+buildinfo.DisplayString())
	resp, err := newAPIClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	if serverVer := resp.Header.Get("X-Kismet-Version"); serverVer != "" {
		if ok, err := buildinfo.CompatibleWith(serverVer); err == nil && !ok {
			printer.Warningf("server reports version %s, incompatible with this CLI's %s\n", serverVer, buildinfo.ReleaseVersion().String())
		}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		printer.Errorf("%s: %s\n", resp.Status, string(b))
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, b, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(b))
	}
	return nil
}
