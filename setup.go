package legion

import (
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/clwillingham/legion/auth"
	"github.com/clwillingham/legion/config"
	"github.com/clwillingham/legion/core"
	"github.com/clwillingham/legion/logging"
	"github.com/clwillingham/legion/model"
	"github.com/clwillingham/legion/model/anthropic"
	"github.com/clwillingham/legion/model/openai"
	"github.com/clwillingham/legion/runtime"
	"github.com/clwillingham/legion/storage"
	"github.com/clwillingham/legion/tool"
)

// Stack is the fully wired engine built from a configuration: the façade plus
// the shared services callers interact with directly (registering tools,
// answering approvals, subscribing to events).
type Stack struct {
	Engine   *Engine
	Store    *storage.Store
	Registry *tool.Registry
	Auth     *auth.Engine
	Bridge   *auth.Bridge
	Bus      *core.EventBus
	Logger   logging.Logger
}

// FromConfig builds a Stack from a configuration: file-backed storage, the
// default tool set rooted at the storage dir, an authorization engine bridged
// for out-of-band approvals, and a dispatcher that builds model clients per
// participant. prompt may be nil when no user participants are expected.
func FromConfig(cfg *config.Config, prompt runtime.PromptFunc) (*Stack, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(&logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})

	store, err := storage.New(cfg.Storage.Dir, logger)
	if err != nil {
		return nil, err
	}

	bus := core.NewEventBus()
	bridge := auth.NewBridge(8)

	authOpts := []func(*auth.Options){
		auth.WithHandler(bridge.Handler()),
		auth.WithBus(bus),
		auth.WithLogger(logger),
	}
	if cfg.Approval.Timeout > 0 {
		authOpts = append(authOpts, auth.WithTimeout(cfg.Approval.Timeout))
	}
	authEngine := auth.New(authOpts...)
	for toolName, policy := range cfg.Approval.Policies {
		p, perr := auth.ParsePolicy(policy)
		if perr != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrConfig, perr)
		}
		authEngine.SetOverride(toolName, p)
	}

	registry := tool.NewRegistry()
	registry.Register(tool.NewCommunicateTool())
	registry.Register(tool.NewReadFileTool(cfg.Storage.Dir))
	registry.Register(tool.NewWriteFileTool(cfg.Storage.Dir))
	registry.Register(tool.NewListFilesTool(cfg.Storage.Dir))

	binder := func(participantID string, policies map[string]string) error {
		return bindParticipantPolicies(authEngine, participantID, policies)
	}
	if err := bindStoredPolicies(store, binder); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfig, err)
	}

	dispatcher := runtime.NewDispatcher(store, registry,
		runtime.WithModelFactory(modelFactory(cfg)),
		runtime.WithPrompt(prompt),
		runtime.WithPolicyBinder(binder),
		runtime.WithLogger(logger),
	)

	engine := New(
		WithStore(store),
		WithResolver(dispatcher),
		WithAuthorizer(authEngine),
		WithBus(bus),
		WithLogger(logger),
		WithMaxDepth(cfg.Limits.MaxDepth),
		WithMaxIterations(cfg.Limits.MaxIterations),
	)

	return &Stack{
		Engine:   engine,
		Store:    store,
		Registry: registry,
		Auth:     authEngine,
		Bridge:   bridge,
		Bus:      bus,
		Logger:   logger,
	}, nil
}

// modelFactory maps (provider, model) pairs from participant definitions to
// concrete clients. API keys come from the configuration, falling back to
// the providers' standard environment variables.
func modelFactory(cfg *config.Config) runtime.ModelFactory {
	return func(provider, modelName string) (model.Model, error) {
		switch provider {
		case "anthropic":
			return anthropic.NewModel(func(o *anthropic.Options) {
				if key := firstNonEmpty(cfg.Providers.Anthropic.APIKey, os.Getenv("ANTHROPIC_API_KEY")); key != "" {
					o.APIKey = key
				}
				if modelName != "" {
					o.Model = anthropicsdk.Model(modelName)
				} else if cfg.Providers.Anthropic.Model != "" {
					o.Model = anthropicsdk.Model(cfg.Providers.Anthropic.Model)
				}
			}), nil
		case "openai":
			return openai.NewModel(func(o *openai.Options) {
				if key := firstNonEmpty(cfg.Providers.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY")); key != "" {
					o.APIKey = key
				}
				if modelName != "" {
					o.Model = modelName
				} else if cfg.Providers.OpenAI.Model != "" {
					o.Model = cfg.Providers.OpenAI.Model
				}
			}), nil
		case "mock", "":
			return model.NewMockModel(modelName), nil
		default:
			return nil, fmt.Errorf("%w: unknown model provider %q", core.ErrProvider, provider)
		}
	}
}

// bindParticipantPolicies applies a participant record's tool policy
// overrides to the authorization engine.
func bindParticipantPolicies(engine *auth.Engine, participantID string, policies map[string]string) error {
	for toolName, raw := range policies {
		p, err := auth.ParsePolicy(raw)
		if err != nil {
			return fmt.Errorf("participant %s, tool %s: %w", participantID, toolName, err)
		}
		engine.SetParticipantPolicy(participantID, toolName, p)
	}
	return nil
}

// bindStoredPolicies applies overrides from every participant already
// persisted in the store. Participants saved later are bound lazily when the
// dispatcher first resolves them.
func bindStoredPolicies(store *storage.Store, binder runtime.PolicyBinder) error {
	ids, err := store.ListParticipantIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		p, found, err := store.Participant(id)
		if err != nil {
			return err
		}
		if !found || len(p.ToolPolicies) == 0 {
			continue
		}
		if err := binder(p.ID, p.ToolPolicies); err != nil {
			return err
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
