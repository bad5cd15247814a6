package answering

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/osvaldoandrade/dossier/internal/ratelimit"
	"github.com/osvaldoandrade/dossier/pkg/domain"

	"google.golang.org/genai"
)

const (
	toolKnowledgeBase = "knowledge_base_lookup"
	toolWebSearch     = "web_search"
)

// Generator is the part of the genai client the adapter needs;
// (*genai.Client).Models satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GenAIOptions struct {
	Model                   string
	MaxToolTurns            int
	SimilarityTopK          int
	VectorDistanceThreshold float64
	// Limiter, when set, is consulted before every backend call under the
	// "answering" scope keyed by subject.
	Limiter ratelimit.Limiter
	Bucket  ratelimit.Bucket
	Logger  *slog.Logger
}

// GenAIProvider answers through a delegating root model that can consult a
// corpus-grounded sub-call and a search-grounded sub-call.
type GenAIProvider struct {
	gen      Generator
	resolver Resolver
	opts     GenAIOptions
}

func NewGenAIProvider(gen Generator, resolver Resolver, opts GenAIOptions) *GenAIProvider {
	if opts.Model == "" {
		opts.Model = "gemini-2.5-flash"
	}
	if opts.MaxToolTurns <= 0 {
		opts.MaxToolTurns = 6
	}
	if opts.SimilarityTopK <= 0 {
		opts.SimilarityTopK = 10
	}
	if opts.VectorDistanceThreshold <= 0 {
		opts.VectorDistanceThreshold = 0.6
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &GenAIProvider{gen: gen, resolver: resolver, opts: opts}
}

// NewGenAIClient builds a genai client for either Vertex AI (project and
// location, application default credentials) or the Gemini API (API key).
func NewGenAIClient(ctx context.Context, project, location, apiKey string, useVertex bool) (*genai.Client, error) {
	cfg := &genai.ClientConfig{}
	if useVertex {
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = project
		cfg.Location = location
	} else {
		cfg.Backend = genai.BackendGeminiAPI
		cfg.APIKey = apiKey
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return client, nil
}

func (p *GenAIProvider) Session(ctx context.Context, req domain.WorkRequest) (Service, error) {
	corpus, err := p.resolve(ctx, req.CorpusReference)
	if err != nil {
		return nil, err
	}
	return &genaiSession{
		provider: p,
		subject:  req.SubjectName,
		ref:      req.CorpusReference,
		corpus:   corpus,
		logger:   p.opts.Logger.With("upload_id", req.UploadID, "subject", req.SubjectName),
	}, nil
}

func (p *GenAIProvider) resolve(ctx context.Context, ref string) (string, error) {
	if p.resolver == nil {
		return ref, nil
	}
	name, err := p.resolver.Resolve(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("resolve corpus: %w", err)
	}
	return name, nil
}

type genaiSession struct {
	provider *GenAIProvider
	subject  string
	ref      string
	corpus   string
	logger   *slog.Logger
}

func (s *genaiSession) Answer(ctx context.Context, directive string, corpusReference string) (string, error) {
	corpus := s.corpus
	if corpusReference != "" && corpusReference != s.ref {
		c, err := s.provider.resolve(ctx, corpusReference)
		if err != nil {
			return "", err
		}
		corpus = c
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(rootInstruction, genai.RoleUser),
		Tools:             []*genai.Tool{{FunctionDeclarations: delegateDeclarations()}},
	}
	history := []*genai.Content{genai.NewContentFromText(directive, genai.RoleUser)}

	for turn := 0; turn < s.provider.opts.MaxToolTurns; turn++ {
		resp, err := s.generate(ctx, history, cfg)
		if err != nil {
			return "", fmt.Errorf("root model: %w", err)
		}
		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			text := strings.TrimSpace(resp.Text())
			if text == "" {
				return "", ErrEmptyAnswer
			}
			return text, nil
		}
		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			history = append(history, resp.Candidates[0].Content)
		}
		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			out, err := s.delegate(ctx, call, corpus)
			payload := map[string]any{"output": out}
			if err != nil {
				s.logger.Warn("tool call failed", "tool", call.Name, "err", err)
				payload = map[string]any{"error": err.Error()}
			}
			parts = append(parts, genai.NewPartFromFunctionResponse(call.Name, payload))
		}
		history = append(history, genai.NewContentFromParts(parts, genai.RoleUser))
	}
	return "", ErrToolBudgetExceeded
}

func (s *genaiSession) delegate(ctx context.Context, call *genai.FunctionCall, corpus string) (string, error) {
	query, _ := call.Args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%s: missing query", call.Name)
	}
	var cfg *genai.GenerateContentConfig
	switch call.Name {
	case toolKnowledgeBase:
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(knowledgeBaseInstruction, genai.RoleUser),
			Tools:             []*genai.Tool{s.provider.retrievalTool(corpus)},
		}
	case toolWebSearch:
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(webSearchInstruction, genai.RoleUser),
			Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		}
	default:
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
	s.logger.Debug("delegating", "tool", call.Name)
	resp, err := s.generate(ctx, []*genai.Content{genai.NewContentFromText(query, genai.RoleUser)}, cfg)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "no relevant information found", nil
	}
	return text, nil
}

func (s *genaiSession) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.provider.gen.GenerateContent(ctx, s.provider.opts.Model, contents, cfg)
}

func (s *genaiSession) wait(ctx context.Context) error {
	err := ratelimit.Wait(ctx, s.provider.opts.Limiter, ratelimit.ScopeAnswering, s.subject, s.provider.opts.Bucket)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}

func (p *GenAIProvider) retrievalTool(corpus string) *genai.Tool {
	return &genai.Tool{
		Retrieval: &genai.Retrieval{
			VertexRAGStore: &genai.VertexRAGStore{
				RAGResources:            []*genai.VertexRAGStoreRAGResource{{RAGCorpus: corpus}},
				SimilarityTopK:          genai.Ptr(int32(p.opts.SimilarityTopK)),
				VectorDistanceThreshold: genai.Ptr(p.opts.VectorDistanceThreshold),
			},
		},
	}
}

func delegateDeclarations() []*genai.FunctionDeclaration {
	query := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{"query": {Type: genai.TypeString, Description: "A focused, self-contained question."}},
		Required:   []string{"query"},
	}
	return []*genai.FunctionDeclaration{
		{
			Name:        toolKnowledgeBase,
			Description: "Answers a question from the company's uploaded documents.",
			Parameters:  query,
		},
		{
			Name:        toolWebSearch,
			Description: "Answers a question from trusted public web sources.",
			Parameters:  query,
		},
	}
}
