// Package notify delivers pipeline run summaries to an external notifier.
// Delivery is fail-open everywhere: a notification error never fails a run.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/contentlens/contentlens/pkg/config"
)

// Summary is the structured payload posted after a pipeline run.
type Summary struct {
	RequestID      string
	Tenant         string
	Workspace      string
	URL            string
	Title          string
	Depth          string
	Status         string // ok, skip, fail
	ProcessingType string // full or lightweight
	QualityScore   float64
	BypassReason   string
	Highlights     string
	CostUSD        float64
	DurationMS     int64
	ErrorMessage   string
}

// Notifier posts run summaries. Implementations must tolerate nil receivers.
type Notifier interface {
	Send(ctx context.Context, s Summary) error
}

const maxBlockTextLength = 2900

var statusEmoji = map[string]string{
	"ok":   ":white_check_mark:",
	"skip": ":fast_forward:",
	"fail": ":x:",
}

// SlackNotifier posts summaries to a Slack channel.
// Nil-safe: Send on a nil notifier is a no-op.
type SlackNotifier struct {
	api     *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlackNotifier creates a notifier from config. Returns nil when disabled
// or when the token env var is unset, which disables notification cleanly.
func NewSlackNotifier(cfg config.SlackConfig) *SlackNotifier {
	if !cfg.Enabled || cfg.Channel == "" {
		return nil
	}
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		return nil
	}
	return &SlackNotifier{
		api:     goslack.New(token),
		channel: cfg.Channel,
		logger:  slog.Default().With("component", "notify"),
	}
}

// NewSlackNotifierWithAPIURL targets a custom API URL. Tests use this with a
// mock server.
func NewSlackNotifierWithAPIURL(token, channel, apiURL string) *SlackNotifier {
	return &SlackNotifier{
		api:     goslack.New(token, goslack.OptionAPIURL(apiURL)),
		channel: channel,
		logger:  slog.Default().With("component", "notify"),
	}
}

// Send posts the summary to the configured channel.
func (n *SlackNotifier) Send(ctx context.Context, s Summary) error {
	if n == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, _, err := n.api.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionBlocks(buildSummaryBlocks(s)...))
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return nil
}

// buildSummaryBlocks creates Block Kit blocks for one run summary.
func buildSummaryBlocks(s Summary) []goslack.Block {
	emoji := statusEmoji[s.Status]
	if emoji == "" {
		emoji = ":question:"
	}

	title := s.Title
	if title == "" {
		title = s.URL
	}
	header := fmt.Sprintf("%s *%s* — %s (%s depth)", emoji, title, s.ProcessingType, s.Depth)

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(header), false, false),
			nil, nil,
		),
	}

	switch {
	case s.ErrorMessage != "":
		blocks = append(blocks, section(fmt.Sprintf("Error: %s", s.ErrorMessage)))
	case s.ProcessingType == "lightweight":
		blocks = append(blocks, section(fmt.Sprintf(
			"Bypassed full analysis (quality %.2f): %s", s.QualityScore, s.BypassReason)))
	case s.Highlights != "":
		blocks = append(blocks, section(s.Highlights))
	}

	footer := fmt.Sprintf("tenant %s/%s · $%.4f · %dms · request %s",
		s.Tenant, s.Workspace, s.CostUSD, s.DurationMS, s.RequestID)
	blocks = append(blocks, goslack.NewContextBlock("",
		goslack.NewTextBlockObject(goslack.MarkdownType, footer, false, false)))
	return blocks
}

func section(text string) goslack.Block {
	return goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(text), false, false),
		nil, nil,
	)
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength-3] + "..."
}
