// Package main implements the compctl CLI for manual operations against the
// complianced HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the complianced HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "compctl",
	Short: "CLI for complianced back office operations",
	Long: `compctl is a command-line interface for the complianced daemon.
It uploads rulebooks, submits payments for validation, and inspects the
rules library, session history, and statistics.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "complianced server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(rulebooksCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check complianced server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/health")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity state and cache sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/api/v1/status")
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Force a connectivity probe of the Compliance Service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/api/v1/probe", nil)
	},
}

var rulebooksCmd = &cobra.Command{
	Use:   "rulebooks [scheme]",
	Short: "List registered rulebooks, or show one scheme's rulebook",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return getJSON("/api/v1/rulebooks/" + args[0])
		}
		return getJSON("/api/v1/rulebooks")
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <scheme> <file>",
	Short: "Upload a rulebook document (pdf or docx) for a scheme",
	Long: `Upload a rulebook document for a payment scheme.

Examples:
  # Upload the SEPA rulebook
  compctl upload SEPA sepa-rulebook-2024.pdf`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return uploadFile("/api/v1/rulebooks", args[1], map[string]string{"scheme": args[0]})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <scheme>",
	Short: "Delete the rulebook registered for a scheme",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/rulebooks/"+args[0], nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		return do(req)
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Query the cached rules library",
	RunE: func(cmd *cobra.Command, args []string) error {
		scheme, _ := cmd.Flags().GetString("scheme")
		severity, _ := cmd.Flags().GetString("severity")
		path := "/api/v1/rules?scheme=" + scheme + "&severity=" + severity
		return getJSON(path)
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the rules library from the Compliance Service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/api/v1/rules/reload", nil)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Submit a payment document (xml, txt, or json) for validation",
	Long: `Submit a payment document for two-phase parse and validation.

Examples:
  # Validate an ISO 20022 payment message
  compctl validate payment.xml

  # Validate with an explicit scheme
  compctl validate --scheme SWIFT payment.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scheme, _ := cmd.Flags().GetString("scheme")
		fields := map[string]string{}
		if scheme != "" {
			fields["scheme"] = scheme
		}
		return uploadFile("/api/v1/payments/document", args[0], fields)
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Submit a structured payment from a JSON file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body []byte
		var err error
		if len(args) == 0 || args[0] == "-" {
			body, err = io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read from stdin: %w", err)
			}
		} else {
			body, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read file %s: %w", args[0], err)
			}
		}
		return postJSON("/api/v1/payments/structured", body)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the session validation history, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/api/v1/history")
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show merged session statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")
		if refresh {
			return postJSON("/api/v1/statistics/refresh", nil)
		}
		return getJSON("/api/v1/statistics")
	},
}

func init() {
	rulesCmd.Flags().String("scheme", "", "filter by payment scheme")
	rulesCmd.Flags().String("severity", "", "filter by severity (low, medium, high)")
	validateCmd.Flags().String("scheme", "", "payment scheme hint")
	statsCmd.Flags().Bool("refresh", false, "refresh the external report before showing")
}

func getJSON(path string) error {
	req, err := http.NewRequest(http.MethodGet, serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return do(req)
}

func postJSON(path string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, serverURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	return do(req)
}

// uploadFile posts a file as multipart form data with extra form fields.
func uploadFile(path, file string, fields map[string]string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", file, err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(file))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+path, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return do(req)
}

// do sends the request and pretty-prints the JSON response.
func do(req *http.Request) error {
	client := &http.Client{Timeout: 180 * time.Second}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if len(body) == 0 {
		fmt.Println("ok")
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
