package server

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resumelens/internal/ai"
	"resumelens/internal/config"
	"resumelens/internal/errors"
	"resumelens/internal/extract"
	"resumelens/internal/keyexchange"
	"resumelens/internal/pipeline"
	"resumelens/internal/sse"
	"resumelens/internal/templates"
	"resumelens/internal/types"
)

const (
	defaultCandidateCount = 3
	// multipartMemory is kept in memory while parsing uploads; the rest
	// spills to temporary files
	multipartMemory = 8 << 20
	// defaultAttachmentPrompt is used when a file is posted without a prompt
	defaultAttachmentPrompt = "Review the attached document and summarize its key points."
)

// startSpan opens the handler span under the otelhttp server span
func (s *Server) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	return s.om.Tracer("resumelens.api").Start(r.Context(), name,
		trace.WithAttributes(attribute.String("request.id", requestID(r.Context()))))
}

// fail records err on the span and writes the error response
func (s *Server) fail(w http.ResponseWriter, r *http.Request, span trace.Span, err error) {
	span.RecordError(err)
	if appErr, ok := errors.AsAppError(err); ok {
		span.SetAttributes(attribute.String("error.type", string(appErr.Type)), attribute.String("error.code", appErr.Code))
	}
	s.writeError(w, r, err)
}

// provider decrypts the caller's key, if any, and builds a provider for op
func (s *Server) provider(ctx context.Context, op, model, encryptedKey string) (ai.Provider, error) {
	key, err := s.keys.Decrypt(encryptedKey)
	if err != nil {
		return nil, err
	}
	return s.factory.Provider(ctx, op, ai.Options{APIKey: key, Model: model})
}

// streamEvents sends the extracted events of one upstream call as SSE.
// Everything that can be rejected is rejected before the headers go out.
func (s *Server) streamEvents(ctx context.Context, w http.ResponseWriter, r *http.Request, span trace.Span, op, model, encryptedKey string, req ai.Request, ex pipeline.Extractor) {
	provider, err := s.provider(ctx, op, model, encryptedKey)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	defer func() { _ = provider.Close() }()

	out, err := sse.NewWriter(w)
	if err != nil {
		s.fail(w, r, span, errors.NewInternalError(errors.ErrCodeStreamFailed, "streaming not supported", err))
		return
	}

	info := provider.ModelInfo()
	span.SetAttributes(
		attribute.String("operation", op),
		attribute.String("ai.provider", info.Provider),
		attribute.String("ai.model", info.Name),
	)
	s.Logger.Info("Opening analysis stream",
		"request_id", requestID(ctx),
		"operation", op,
		"provider", info.Provider,
		"model", info.Name)

	summary := s.driver.Stream(ctx, requestID(ctx), func(ctx context.Context) (ai.TokenStream, error) {
		return provider.Stream(ctx, req)
	}, ex, out)

	span.SetAttributes(
		attribute.String("stream.outcome", summary.Outcome),
		attribute.Int("stream.findings", summary.Findings),
	)
	if summary.Outcome == pipeline.OutcomeError {
		span.RecordError(summary.Err)
	}
}

// handleAnalyze streams weaknesses and the score of a resume
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.analyze")
	defer span.End()

	var req types.AnalyzeRequest
	if err := s.decodeRequest(r, &req); err != nil {
		s.fail(w, r, span, err)
		return
	}

	paragraphs := extract.SplitParagraphs(req.Content)
	if len(paragraphs) == 0 {
		s.fail(w, r, span, errors.NewValidationError(errors.ErrCodeInvalidRequest, "content has no paragraphs", nil))
		return
	}
	span.SetAttributes(attribute.Int("request.paragraphs", len(paragraphs)))

	prompt, err := s.factory.Prompts().Analyze(paragraphs, req.TargetRole, req.JobDescription)
	if err != nil {
		s.fail(w, r, span, errors.NewInternalError(errors.ErrCodeInvalidConfig, "failed to build prompt", err))
		return
	}

	s.streamEvents(ctx, w, r, span, config.OpAnalyze, req.Model, req.EncryptedAPIKey, prompt,
		extract.NewBasic(paragraphs, extract.WithValidator(s.basicSpec)))
}

// handleDeepInsights streams timeline, skill, metric and job match findings
func (s *Server) handleDeepInsights(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.deep_insights")
	defer span.End()

	var req types.AnalyzeRequest
	if err := s.decodeRequest(r, &req); err != nil {
		s.fail(w, r, span, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.fail(w, r, span, errors.NewValidationError(errors.ErrCodeInvalidRequest, "content is required", nil))
		return
	}
	span.SetAttributes(attribute.Int("request.content_length", len(req.Content)))

	prompt, err := s.factory.Prompts().DeepInsights(req.Content, req.TargetRole, req.JobDescription)
	if err != nil {
		s.fail(w, r, span, errors.NewInternalError(errors.ErrCodeInvalidConfig, "failed to build prompt", err))
		return
	}

	s.streamEvents(ctx, w, r, span, config.OpDeepInsights, req.Model, req.EncryptedAPIKey, prompt,
		extract.NewDeep(extract.WithValidator(s.deepSpec)))
}

// handleFormatStream streams the restructured document as deltas
func (s *Server) handleFormatStream(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.format_stream")
	defer span.End()

	var req types.FormatRequest
	if err := s.decodeRequest(r, &req); err != nil {
		s.fail(w, r, span, err)
		return
	}

	s.streamEvents(ctx, w, r, span, config.OpFormat, req.Model, req.EncryptedAPIKey,
		s.factory.Prompts().Format(req.Content), pipeline.NewPassthrough("format"))
}

// handleFormat returns the restructured document in one response
func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.format")
	defer span.End()

	var req types.FormatRequest
	if err := s.decodeRequest(r, &req); err != nil {
		s.fail(w, r, span, err)
		return
	}

	provider, err := s.provider(ctx, config.OpFormat, req.Model, req.EncryptedAPIKey)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	defer func() { _ = provider.Close() }()

	key := formatKey(provider.ModelInfo().Name, req.Content)
	content, err := s.formats.Do(ctx, key, func(ctx context.Context) (string, error) {
		completion, err := provider.Complete(ctx, s.factory.Prompts().Format(req.Content))
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(completion.Text)
		if text == "" {
			return "", errors.NewAIError(errors.ErrCodeMalformedResponse, "model returned an empty document", nil)
		}
		return text, nil
	})
	if err != nil {
		s.fail(w, r, span, err)
		return
	}

	span.SetAttributes(attribute.Int("response.content_length", len(content)))
	writeJSON(w, http.StatusOK, types.FormatResponse{Content: content})
}

// handleComplete answers a free-form prompt, optionally over an uploaded file
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.complete")
	defer span.End()

	var (
		req        types.PromptRequest
		attachment string
		err        error
	)
	if isMultipart(r) {
		req, attachment, err = s.readCompleteForm(r)
	} else {
		err = s.decodeRequest(r, &req)
	}
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	span.SetAttributes(
		attribute.Int("request.prompt_length", len(req.Prompt)),
		attribute.Int("request.attachment_length", len(attachment)),
	)

	provider, err := s.provider(ctx, config.OpComplete, req.Model, req.EncryptedAPIKey)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	defer func() { _ = provider.Close() }()

	completion, err := provider.Complete(ctx, s.factory.Prompts().Complete(req.Prompt, attachment))
	if err != nil {
		s.fail(w, r, span, err)
		return
	}

	writeJSON(w, http.StatusOK, types.CompleteResponse{Result: completion.Text})
}

// readCompleteForm reads the prompt fields and extracts the text of the file
func (s *Server) readCompleteForm(r *http.Request) (types.PromptRequest, string, error) {
	parsed, err := s.parseUpload(r)
	if err != nil {
		return types.PromptRequest{}, "", err
	}

	req := types.PromptRequest{
		Prompt:          strings.TrimSpace(r.FormValue("prompt")),
		Model:           r.FormValue("model"),
		EncryptedAPIKey: r.FormValue("encryptedApiKey"),
	}
	if req.Prompt == "" {
		req.Prompt = defaultAttachmentPrompt
	}
	return req, parsed.Content, nil
}

// parseUpload extracts the text of the multipart "file" field
func (s *Server) parseUpload(r *http.Request) (*types.ParsedFile, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "invalid multipart form", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "file is required", err)
	}
	defer func() { _ = file.Close() }()

	return s.parser.ParseReader(header.Filename, file)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// handleRawStream relays every upstream message as one line of JSON
func (s *Server) handleRawStream(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.raw_stream")
	defer span.End()

	var req types.PromptRequest
	if err := s.decodeRequest(r, &req); err != nil {
		s.fail(w, r, span, err)
		return
	}

	provider, err := s.provider(ctx, config.OpComplete, req.Model, req.EncryptedAPIKey)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	defer func() { _ = provider.Close() }()

	flusher, _ := w.(http.Flusher)
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}

	lines := 0
	err = provider.RawStream(ctx, s.factory.Prompts().Complete(req.Prompt, ""), func(raw []byte) error {
		start()
		if _, err := w.Write(append(raw, '\n')); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		lines++
		return nil
	})
	span.SetAttributes(attribute.Int("response.lines", lines))

	switch {
	case err == nil:
		start()
	case !started:
		s.fail(w, r, span, err)
	case ctx.Err() != nil:
		s.Logger.Debug("Client left raw stream", "request_id", requestID(ctx), "lines", lines)
	default:
		span.RecordError(err)
		s.Logger.LogError(err, "Raw stream failed", "request_id", requestID(ctx), "lines", lines)
		line, _ := json.Marshal(map[string]any{"error": map[string]string{"message": pipeline.Message(err)}})
		_, _ = w.Write(append(line, '\n'))
	}
}

// handleTagCandidates suggests alternative phrasings of a highlighted text
func (s *Server) handleTagCandidates(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.tag_candidates")
	defer span.End()

	var req types.TagCandidatesRequest
	if err := s.decodeRequest(r, &req); err != nil {
		s.fail(w, r, span, err)
		return
	}
	count := req.CandidateCount
	if count == 0 {
		count = defaultCandidateCount
	}

	prompt, err := s.factory.Prompts().TagCandidates(req.Text, req.Reason, req.Context, count)
	if err != nil {
		s.fail(w, r, span, errors.NewInternalError(errors.ErrCodeInvalidConfig, "failed to build prompt", err))
		return
	}

	provider, err := s.provider(ctx, config.OpTagCandidates, req.Model, req.EncryptedAPIKey)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	defer func() { _ = provider.Close() }()

	completion, err := provider.Complete(ctx, prompt)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}

	candidates, err := parseCandidates(completion.Text, count)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	span.SetAttributes(attribute.Int("response.candidates", len(candidates)))
	writeJSON(w, http.StatusOK, types.TagCandidates{Candidates: candidates})
}

// parseCandidates reads {"candidates":[...]}, drops blanks and duplicates
// and keeps at most count entries
func parseCandidates(text string, count int) ([]string, error) {
	malformed := errors.NewAIError(errors.ErrCodeMalformedResponse, "model returned no usable candidates", nil)

	payload, ok := extract.Payload(text)
	if !ok {
		return nil, malformed
	}
	var parsed types.TagCandidates
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		malformed.Cause = err
		return nil, malformed
	}

	seen := make(map[string]bool, len(parsed.Candidates))
	candidates := make([]string, 0, count)
	for _, c := range parsed.Candidates {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		candidates = append(candidates, c)
		if len(candidates) == count {
			break
		}
	}
	if len(candidates) == 0 {
		return nil, malformed
	}
	return candidates, nil
}

// handleValidateKey checks a caller's provider key against the provider
func (s *Server) handleValidateKey(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.validate_key")
	defer span.End()

	var req types.ValidateKeyRequest
	if err := s.decodeRequest(r, &req); err != nil {
		s.fail(w, r, span, err)
		return
	}

	key, err := s.keys.Decrypt(req.EncryptedAPIKey)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	provider, err := s.factory.Provider(ctx, config.OpComplete, ai.Options{APIKey: key})
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	defer func() { _ = provider.Close() }()

	if err := provider.ValidateKey(ctx); err != nil {
		span.SetAttributes(attribute.Bool("key.valid", false))
		s.Logger.Debug("Provider key rejected", "request_id", requestID(ctx), "error", err.Error())
		writeJSON(w, http.StatusOK, types.ValidateKeyResponse{Valid: false, Message: pipeline.Message(err)})
		return
	}

	span.SetAttributes(attribute.Bool("key.valid", true))
	writeJSON(w, http.StatusOK, types.ValidateKeyResponse{Valid: true, Message: "API key is valid"})
}

// handlePublicKey publishes the key callers encrypt provider keys with
func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, types.PublicKeyResponse{
		PublicKey: s.keys.PublicKeyPEM(),
		Algorithm: keyexchange.Algorithm,
		Hash:      keyexchange.Hash,
	})
}

// handleFileParse extracts the text of an uploaded file
func (s *Server) handleFileParse(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.file_parse")
	defer span.End()

	parsed, err := s.parseUpload(r)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}

	span.SetAttributes(
		attribute.String("file.type", parsed.Type),
		attribute.Int64("file.size", parsed.Metadata.Size),
	)
	writeJSON(w, http.StatusOK, parsed)
}

// handleResumeTemplate downloads the markdown resume template
func (s *Server) handleResumeTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": templates.ResumeFilename}))
	_, _ = w.Write(templates.Resume())
}
