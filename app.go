package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/phuslu/log"
	"google.golang.org/genai"

	"github.com/mattiatonolo-png/nutri-ai-assistant/config"
	"github.com/mattiatonolo-png/nutri-ai-assistant/services"
	"github.com/mattiatonolo-png/nutri-ai-assistant/storage"
	"github.com/mattiatonolo-png/nutri-ai-assistant/vectorstore"
	"github.com/mattiatonolo-png/nutri-ai-assistant/vectorstore/chroma"
	"github.com/mattiatonolo-png/nutri-ai-assistant/vectorstore/flat"
)

// app builds the services a command needs from the configuration. Clients
// are created on first use so that a command touching only the nutrient
// table never needs an API key.
type app struct {
	cfg     *config.Config
	gemini  *genai.Client
	matcher *services.FoodMatcher
	closers []func() error
}

func newApp(cfg *config.Config) *app {
	if err := services.SetPDFLicense(cfg.Corpus.UnidocLicenseKey); err != nil {
		log.Warn().Err(err).Msg("PDF license not applied")
	}
	return &app{cfg: cfg}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}
}

func (a *app) geminiClient(ctx context.Context) (*genai.Client, error) {
	if a.gemini != nil {
		return a.gemini, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  a.cfg.Generation.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	a.gemini = client
	return client, nil
}

func (a *app) embedder(ctx context.Context) (services.Embedder, error) {
	ec := a.cfg.Embedding
	if ec.Provider == "ollama" {
		return services.NewOllamaEmbedder(&http.Client{Timeout: 30 * time.Second}, ec.OllamaURL, ec.Model), nil
	}
	client, err := a.geminiClient(ctx)
	if err != nil {
		return nil, err
	}
	return services.NewGeminiEmbedder(client, ec.Model), nil
}

func (a *app) vectorStore() (vectorstore.Store, error) {
	ic := a.cfg.Index
	if ic.Backend == "chroma" {
		client, err := chroma.Dial(ic.ChromaURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Chroma client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return chroma.NewStore(client, ic.Collection), nil
	}
	return flat.NewStore(ic.Path), nil
}

// KnowledgeBase wires the library, the index store and the embedder. The
// index is not loaded yet.
func (a *app) KnowledgeBase(ctx context.Context) (*services.KnowledgeBase, error) {
	emb, err := a.embedder(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.vectorStore()
	if err != nil {
		return nil, err
	}
	cc := a.cfg.Chunking
	chunker := services.NewChunker(
		services.WithStrategy(cc.Strategy),
		services.WithChunkSize(cc.Size),
		services.WithChunkOverlap(cc.Overlap),
	)
	ec := a.cfg.Embedding
	builder := services.NewIndexBuilder(store, emb, chunker, services.IndexBuilderConfig{
		BatchSize: ec.BatchSize,
		Pause:     ec.PauseDuration(),
		Backoff:   ec.BackoffDuration(),
	})
	source := services.NewDirectorySource(a.cfg.Corpus.Dir, services.FileTextExtractor{})
	return services.NewKnowledgeBase(builder, source, services.NewRetriever(emb)), nil
}

// Matcher loads the nutrient table. A missing table leaves the matcher
// empty: chat keeps working and every food goes unmatched.
func (a *app) Matcher() (*services.FoodMatcher, error) {
	if a.matcher != nil {
		return a.matcher, nil
	}
	nc := a.cfg.Nutrients
	table, err := services.LoadFoodTable(nc.TablePath)
	if err != nil {
		log.Error().Err(err).Str("path", nc.TablePath).Msg("nutrient table not loaded")
		table = services.NewFoodTable(nil)
	}
	a.matcher = services.NewFoodMatcher(table, nc.MatchThreshold)
	return a.matcher, nil
}

func (a *app) Generator(ctx context.Context) (*services.GeminiGenerator, error) {
	client, err := a.geminiClient(ctx)
	if err != nil {
		return nil, err
	}
	gc := a.cfg.Generation
	return services.NewGeminiGenerator(client, gc.Model, gc.Temperature, gc.TimeoutDuration()).
		WithResponseSchema(services.DietPlanSchema()), nil
}

func (a *app) Planner(gen services.Generator) (*services.Planner, error) {
	matcher, err := a.Matcher()
	if err != nil {
		return nil, err
	}
	return services.NewPlanner(services.NewDietExtractor(gen), matcher), nil
}

// Sessions opens the plan database when one is configured. Without it
// sessions live in memory only.
func (a *app) Sessions() (*services.SessionManager, error) {
	path := a.cfg.Storage.SQLitePath
	if path == "" {
		log.Warn().Msg("no sqlite_path configured, sessions are not persisted")
		return services.NewSessionManager(nil), nil
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	log.Info().Str("path", store.Path()).Msg("session store opened")
	return services.NewSessionManager(store), nil
}
