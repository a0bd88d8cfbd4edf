package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/cli/config"
	httpctrl "github.com/Dev-Marygold/Laffey/pkg/controller/http"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/utils/safe"
	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

var ErrAdminRequest = goerr.New("admin API request failed")

// adminClient calls the admin API of a running server. Working memory only
// lives in the server process, so maintenance goes over HTTP.
type adminClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func newAdminClient(baseURL, token string) *adminClient {
	return &adminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (x *adminClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return goerr.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, x.baseURL+"/api/admin"+path, reader)
	if err != nil {
		return goerr.Wrap(err, "failed to create request", goerr.V("path", path))
	}
	req.Header.Set("Authorization", "Bearer "+x.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to call admin API", goerr.V("path", path))
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return goerr.Wrap(ErrAdminRequest, "admin API returned an error",
			goerr.V("path", path),
			goerr.V("status", resp.StatusCode),
			goerr.V("message", apiErr.Error))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "failed to decode admin API response", goerr.V("path", path))
	}
	return nil
}

func (x *adminClient) Stats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats
	if err := x.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (x *adminClient) Consolidate(ctx context.Context, channelID string) (*model.ConsolidationResult, error) {
	var result model.ConsolidationResult
	path := "/channels/" + url.PathEscape(channelID) + "/consolidate"
	if err := x.do(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (x *adminClient) Memories(ctx context.Context, speakerID string, limit int) ([]httpctrl.Memory, error) {
	query := url.Values{}
	if speakerID != "" {
		query.Set("speaker", speakerID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/memories"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var memories []httpctrl.Memory
	if err := x.do(ctx, http.MethodGet, path, nil, &memories); err != nil {
		return nil, err
	}
	return memories, nil
}

// Wipe requests a confirmation token and confirms it immediately
func (x *adminClient) Wipe(ctx context.Context) (*model.WipeResult, error) {
	var ticket httpctrl.WipeTicket
	if err := x.do(ctx, http.MethodPost, "/wipe", nil, &ticket); err != nil {
		return nil, err
	}

	var result model.WipeResult
	if err := x.do(ctx, http.MethodPost, "/wipe/"+url.PathEscape(ticket.Token), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	keyColor  = color.New(color.FgCyan)
)

func printOK(w io.Writer, format string, args ...any) {
	_, _ = okColor.Fprintf(w, format+"\n", args...)
}

func printWarn(w io.Writer, format string, args ...any) {
	_, _ = warnColor.Fprintf(w, format+"\n", args...)
}

func printField(w io.Writer, key string, value any) {
	_, _ = keyColor.Fprintf(w, "  %-24s", key)
	_, _ = fmt.Fprintf(w, "%v\n", value)
}

func printErrors(w io.Writer, errs []string) {
	for _, e := range errs {
		_, _ = errColor.Fprintf(w, "  ! %s\n", e)
	}
}

// confirm asks the operator to type "yes"
func confirm(r io.Reader, w io.Writer, prompt string) (bool, error) {
	_, _ = warnColor.Fprint(w, prompt)

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, goerr.Wrap(err, "failed to read confirmation")
	}
	return strings.TrimSpace(strings.ToLower(line)) == "yes", nil
}

func renderStats(w io.Writer, stats *model.Stats) {
	printOK(w, "Memory statistics")
	printField(w, "working memory channels", stats.WorkingMemoryChannels)
	printField(w, "working memory messages", stats.WorkingMemoryMessages)
	printField(w, "episodic ready", stats.EpisodicReady)
	printField(w, "episodic memories", stats.EpisodicCount)
	printField(w, "facts", stats.FactCount)
	if stats.Identity != nil {
		printField(w, "identity", stats.Identity.Name+" (creator: "+stats.Identity.Creator+")")
	}
	printErrors(w, stats.Errors)
}

func renderConsolidation(w io.Writer, result *model.ConsolidationResult) {
	if len(result.Errors) == 0 {
		printOK(w, "Consolidated %s", result.ChannelID)
	} else {
		printWarn(w, "Consolidated %s with errors", result.ChannelID)
	}
	printField(w, "messages processed", result.MessagesProcessed)
	printField(w, "episodic created", result.EpisodicCreated)
	printField(w, "facts extracted", result.FactsExtracted)
	printField(w, "elapsed", result.Elapsed)
	if result.Summary != "" {
		printField(w, "summary", result.Summary)
	}
	printErrors(w, result.Errors)
}

func renderMemories(w io.Writer, memories []httpctrl.Memory) {
	if len(memories) == 0 {
		printWarn(w, "No episodic memories")
		return
	}
	printOK(w, "%d episodic memories", len(memories))
	for _, m := range memories {
		_, _ = keyColor.Fprintf(w, "%s  %s (%s) in %s\n", m.Timestamp.Format(time.RFC3339), m.SpeakerName, m.SpeakerID, m.ChannelID)
		_, _ = fmt.Fprintf(w, "  > %s\n  < %s\n", m.UserText, m.AgentText)
	}
}

func renderWipe(w io.Writer, result *model.WipeResult) {
	if len(result.Errors) == 0 {
		printOK(w, "All memory wiped")
	} else {
		printWarn(w, "Memory wiped with errors")
	}
	printField(w, "working memory cleared", result.WorkingMemoryCleared)
	printField(w, "episodic cleared", result.EpisodicCleared)
	printField(w, "facts cleared", result.FactsCleared)
	printErrors(w, result.Errors)
}

func cmdAdmin() *cli.Command {
	var serverURL string
	var token string
	var speakerID string
	var memoryLimit int

	newClient := func() (*adminClient, error) {
		if token == "" {
			return nil, goerr.Wrap(config.ErrMissingRequired, "--admin-token is required", goerr.V(config.FlagKey, "admin-token"))
		}
		return newAdminClient(serverURL, token), nil
	}

	return &cli.Command{
		Name:  "admin",
		Usage: "Maintain the memory of a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "server",
				Usage:       "Base URL of the running server",
				Value:       "http://localhost:8080",
				Sources:     cli.EnvVars("LAFFEY_SERVER_URL"),
				Destination: &serverURL,
			},
			&cli.StringFlag{
				Name:        "admin-token",
				Usage:       "Bearer token of the admin API",
				Sources:     cli.EnvVars("LAFFEY_ADMIN_TOKEN"),
				Destination: &token,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show counts of every memory layer",
				Action: func(ctx context.Context, c *cli.Command) error {
					client, err := newClient()
					if err != nil {
						return err
					}
					stats, err := client.Stats(ctx)
					if err != nil {
						return err
					}
					renderStats(c.Root().Writer, stats)
					return nil
				},
			},
			{
				Name:      "consolidate",
				Usage:     "Consolidate working memory of a channel now",
				ArgsUsage: "<channel-id>",
				Action: func(ctx context.Context, c *cli.Command) error {
					channelID := c.Args().First()
					if channelID == "" {
						return goerr.Wrap(config.ErrMissingRequired, "channel ID is required")
					}
					client, err := newClient()
					if err != nil {
						return err
					}
					result, err := client.Consolidate(ctx, channelID)
					if err != nil {
						return err
					}
					renderConsolidation(c.Root().Writer, result)
					return nil
				},
			},
			{
				Name:  "memories",
				Usage: "Show recent episodic memories",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "speaker",
						Usage:       "Only memories of this Slack user ID",
						Destination: &speakerID,
					},
					&cli.IntFlag{
						Name:        "limit",
						Usage:       "Maximum number of memories",
						Value:       20,
						Destination: &memoryLimit,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					client, err := newClient()
					if err != nil {
						return err
					}
					memories, err := client.Memories(ctx, speakerID, memoryLimit)
					if err != nil {
						return err
					}
					renderMemories(c.Root().Writer, memories)
					return nil
				},
			},
			{
				Name:  "wipe",
				Usage: "Delete every memory of every layer",
				Action: func(ctx context.Context, c *cli.Command) error {
					client, err := newClient()
					if err != nil {
						return err
					}

					ok, err := confirm(c.Root().Reader, c.Root().Writer,
						"This deletes ALL memories of every layer. Type 'yes' to continue: ")
					if err != nil {
						return err
					}
					if !ok {
						printWarn(c.Root().Writer, "Aborted")
						return nil
					}

					result, err := client.Wipe(ctx)
					if err != nil {
						return err
					}
					renderWipe(c.Root().Writer, result)
					return nil
				},
			},
		},
	}
}
