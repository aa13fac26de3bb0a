package pipeline

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/contentlens/contentlens/pkg/httpx"
	"github.com/contentlens/contentlens/pkg/step"
	"github.com/contentlens/contentlens/pkg/tenancy"
)

// detectPlatform classifies a URL by host. Unknown hosts are plain web pages.
func detectPlatform(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "web"
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	switch {
	case host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		return "youtube"
	case host == "vimeo.com" || strings.HasSuffix(host, ".vimeo.com"):
		return "vimeo"
	case strings.Contains(host, "podcast") || strings.HasSuffix(parsed.Path, ".rss") ||
		strings.HasSuffix(parsed.Path, ".xml"):
		return "podcast"
	default:
		return "web"
	}
}

// detectContentType maps a platform to the coarse content type checkpoints and
// analysis tools key on.
func detectContentType(acq *Acquisition) string {
	switch acq.Platform {
	case "youtube", "vimeo":
		return "video"
	case "podcast":
		return "audio"
	default:
		return "article"
	}
}

var (
	titleRe   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	tagRe     = regexp.MustCompile(`(?s)<script[^>]*>.*?</script>|<style[^>]*>.*?</style>|<[^>]+>`)
	blankRe   = regexp.MustCompile(`\s+`)
	entityMap = strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">",
		"&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
	)
)

// WebAcquirer fetches page content over the resilient HTTP substrate. Fetches
// are cached GETs, so repeat acquisitions of the same URL within the TTL do
// not hit the origin.
type WebAcquirer struct {
	Client   *httpx.Client
	CacheTTL time.Duration
}

// Acquire downloads the URL and extracts title and body text. The body is
// stashed in Metadata["transcript"] so the native transcriber can segment it
// without a second fetch.
func (a *WebAcquirer) Acquire(ctx context.Context, rawURL string) (*Acquisition, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, step.NewError(step.CategoryValidation, "invalid content url: "+rawURL)
	}

	opts := httpx.Options{Cached: true, CacheTTL: a.CacheTTL}
	if tc, ok := tenancy.FromContext(ctx); ok {
		opts.Tenant = tc.TenantID
	}
	resp, err := a.Client.Get(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}

	body := string(resp.Body)
	title := extractTitle(body)
	if title == "" {
		title = rawURL
	}

	return &Acquisition{
		Platform: detectPlatform(rawURL),
		Title:    title,
		Metadata: map[string]any{
			"source_url": rawURL,
			"from_cache": resp.FromCache,
			"transcript": stripMarkup(body),
		},
	}, nil
}

func extractTitle(html string) string {
	m := titleRe.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(entityMap.Replace(blankRe.ReplaceAllString(m[1], " ")))
}

func stripMarkup(html string) string {
	text := tagRe.ReplaceAllString(html, " ")
	return strings.TrimSpace(blankRe.ReplaceAllString(entityMap.Replace(text), " "))
}

// NativeTranscriber produces transcripts for content whose text arrived with
// the acquisition (web articles, caption tracks fetched upstream). Media
// requiring speech-to-text needs a different Transcriber.
type NativeTranscriber struct{}

// segmentSpanS is the nominal span assigned to each synthetic segment.
const segmentSpanS = 30.0

// Transcribe builds a transcript from Metadata["transcript"]. Content without
// embedded text is a processing error.
func (NativeTranscriber) Transcribe(_ context.Context, acq *Acquisition, language string) (*Transcript, error) {
	raw, _ := acq.Metadata["transcript"].(string)
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("no embedded transcript for " + acq.Platform + " content")
	}
	if language == "" {
		language = "en"
	}

	sourceURL, _ := acq.Metadata["source_url"].(string)
	segments := segmentText(raw)
	duration := float64(len(segments)) * segmentSpanS
	if acq.DurationS > 0 {
		duration = acq.DurationS
	}

	return &Transcript{
		Segments:  segments,
		Language:  language,
		SourceURL: sourceURL,
		DurationS: duration,
	}, nil
}

// segmentText splits text into fixed-size word windows with synthetic
// timestamps so downstream consumers see a uniform segment shape.
func segmentText(text string) []Segment {
	const wordsPerSegment = 80

	words := strings.Fields(text)
	var segments []Segment
	for i := 0; i < len(words); i += wordsPerSegment {
		end := i + wordsPerSegment
		if end > len(words) {
			end = len(words)
		}
		idx := float64(len(segments))
		segments = append(segments, Segment{
			Text:       strings.Join(words[i:end], " "),
			StartS:     idx * segmentSpanS,
			EndS:       (idx + 1) * segmentSpanS,
			Confidence: 1.0,
		})
	}
	return segments
}
