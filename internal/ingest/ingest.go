// Package ingest turns message attachments into prompt material: text files
// are fetched and inlined, images are captioned when the active model lacks
// vision, and everything else is described best-effort.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cottbot/internal/logging"
	"cottbot/internal/models"
	"cottbot/internal/spam"
	"cottbot/internal/types"
)

const (
	maxTextFileBytes = 1 << 20
	fetchTimeout     = 30 * time.Second

	captionPrompt = "Please describe these images in detail. Be thorough and descriptive. Include any text visible in the images."
)

var textFileSuffixes = []string{".txt", ".md", ".json", ".csv"}

// SpamError aborts the whole turn: a fetched text attachment tripped the
// spam filter.
type SpamError struct {
	FileName string
	Reason   string
}

func (e *SpamError) Error() string {
	return fmt.Sprintf("text file %q flagged as spam: %s", e.FileName, e.Reason)
}

// Result is the ingestor's contribution to the final user turn.
type Result struct {
	// Descriptions are prepended textual renderings: inlined text files,
	// image captions, and best-effort summaries of other files.
	Descriptions []string

	// ImageURLs is populated instead of captions when the active model has
	// vision; the context builder turns them into multipart image parts.
	ImageURLs []string
}

// Ingestor processes the attachments of one inbound message.
type Ingestor struct {
	client     types.CompletionClient
	httpClient *http.Client
}

// New creates an ingestor using client for auxiliary vision/description
// calls.
func New(client types.CompletionClient) *Ingestor {
	return &Ingestor{
		client:     client,
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
}

func isImage(a types.Attachment) bool {
	return strings.HasPrefix(a.ContentType, "image/")
}

func isTextFile(a types.Attachment) bool {
	if strings.HasPrefix(a.ContentType, "text/") {
		return true
	}
	for _, suffix := range textFileSuffixes {
		if strings.HasSuffix(a.Name, suffix) {
			return true
		}
	}
	return false
}

// Ingest processes attachments for a message addressed to modelID. The only
// error it returns is *SpamError; every other failure degrades to a
// placeholder description.
func (ing *Ingestor) Ingest(ctx context.Context, attachments []types.Attachment, modelID string) (*Result, error) {
	var images, textFiles, others []types.Attachment
	for _, a := range attachments {
		switch {
		case isImage(a):
			images = append(images, a)
		case isTextFile(a):
			textFiles = append(textFiles, a)
		default:
			others = append(others, a)
		}
	}

	result := &Result{}

	if len(textFiles) > 0 {
		logging.Ingest("Processing %d text file attachment(s)", len(textFiles))
		for _, a := range textFiles {
			desc, err := ing.inlineTextFile(ctx, a)
			if err != nil {
				return nil, err
			}
			result.Descriptions = append(result.Descriptions, desc)
		}
	}

	if len(images) > 0 {
		if models.SupportsVision(modelID) {
			logging.Ingest("Model supports vision, %d image(s) passed through", len(images))
			for _, a := range images {
				result.ImageURLs = append(result.ImageURLs, a.URL)
			}
		} else {
			logging.Ingest("Model lacks vision, captioning %d image(s) via %s", len(images), models.VisionModel)
			result.Descriptions = append(result.Descriptions, ing.captionImages(ctx, images))
		}
	}

	if len(others) > 0 {
		logging.Ingest("Describing %d other attachment(s)", len(others))
		result.Descriptions = append(result.Descriptions, ing.describeOthers(ctx, others))
	}

	return result, nil
}

// inlineTextFile fetches one text attachment and spam-checks its content.
// Fetch failures degrade to a placeholder; spam aborts the turn.
func (ing *Ingestor) inlineTextFile(ctx context.Context, a types.Attachment) (string, error) {
	content, err := ing.fetchText(ctx, a.URL)
	if err != nil {
		logging.IngestError("Failed to read text file %s: %v", a.Name, err)
		return fmt.Sprintf("[Text file: %s - Unable to read]", a.Name), nil
	}

	if verdict := spam.Classify(content); verdict.IsSpam {
		logging.Ingest("Text file %s flagged as spam: %s", a.Name, verdict.Reason)
		return "", &SpamError{FileName: a.Name, Reason: verdict.Reason}
	}

	logging.IngestDebug("Loaded text file %s: %d characters", a.Name, len(content))
	return fmt.Sprintf("[Text file: %s]\n%s", a.Name, content), nil
}

func (ing *Ingestor) fetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}
	resp, err := ing.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTextFileBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// captionImages describes all images in one call to the vision model.
func (ing *Ingestor) captionImages(ctx context.Context, images []types.Attachment) string {
	parts := make([]types.ContentPart, 0, len(images)+1)
	parts = append(parts, types.TextPart(captionPrompt))
	for _, a := range images {
		parts = append(parts, types.ImagePart(a.URL))
	}

	result, err := ing.client.Complete(ctx, models.VisionModel,
		[]types.ConversationMessage{{Role: types.RoleUser, Parts: parts}}, nil)
	if err != nil {
		logging.IngestError("Image captioning failed: %v", err)
		return "[Image description unavailable]"
	}

	logging.IngestDebug("Image description generated: %.100s", result.Text)
	return fmt.Sprintf("[Image description: %s]", result.Text)
}

// describeOthers asks the vision model for a best-effort summary built from
// file names and types.
func (ing *Ingestor) describeOthers(ctx context.Context, others []types.Attachment) string {
	infos := make([]string, len(others))
	for i, a := range others {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "unknown type"
		}
		infos[i] = fmt.Sprintf("%s (%s)", a.Name, contentType)
	}
	info := strings.Join(infos, ", ")

	prompt := fmt.Sprintf("The user has attached the following files: %s. Please provide a brief description of what these files might contain based on their names and types. If you can access them, describe their contents.", info)

	result, err := ing.client.Complete(ctx, models.VisionModel,
		[]types.ConversationMessage{types.TextMessage(types.RoleUser, prompt)}, nil)
	if err != nil {
		logging.IngestError("Other-attachment description failed: %v", err)
		return "[Other attachments: Unable to process]"
	}
	return fmt.Sprintf("[Other attachments: %s]\n%s", info, result.Text)
}
