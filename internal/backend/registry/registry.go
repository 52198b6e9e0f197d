// Package registry builds engines from backend configurations. It is the
// single place that knows how to turn a declarative BackendConfig into a
// live engine, and it is what the model cache calls on a miss.
package registry

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"speechflow/internal/backend"
	"speechflow/internal/backend/customllm"
	"speechflow/internal/backend/funasr"
	"speechflow/internal/backend/modelscope"
	"speechflow/internal/backend/ollama"
	"speechflow/internal/backend/whisper"
	"speechflow/internal/domain"
	"speechflow/internal/faults"
	"speechflow/internal/media"
	"speechflow/internal/modelcache"
)

// Registry validates backend configs and constructs engines for them.
type Registry struct {
	transcoder *media.Transcoder
	validate   *validator.Validate
	log        zerolog.Logger
}

// New returns a registry that builds recognizers on top of the given
// transcoder.
func New(transcoder *media.Transcoder, log zerolog.Logger) *Registry {
	return &Registry{
		transcoder: transcoder,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        log.With().Str("component", "registry").Logger(),
	}
}

// Loader adapts the registry to the model cache's loader contract.
func (r *Registry) Loader() modelcache.Loader {
	return r.Build
}

// Build validates cfg and constructs the engine it describes. Invalid
// configurations fail with a CONFIG_ERROR before any engine work starts;
// recognizers whose sidecar endpoint is not configured come back as
// permanently unavailable engines rather than errors, so callers learn
// the reason at call time.
func (r *Registry) Build(ctx context.Context, cfg domain.BackendConfig) (backend.Engine, error) {
	if err := r.check(cfg); err != nil {
		return nil, err
	}
	r.log.Debug().Str("backend", string(cfg.Kind)).Msg("building engine")

	switch cfg.Kind {
	case domain.BackendWhisper:
		return whisper.Load(cfg.Whisper, r.transcoder, r.log)
	case domain.BackendFunASR:
		if cfg.FunASR.SidecarURL == "" {
			return backend.NewUnavailable("funasr", "funasr sidecar URL is not configured"), nil
		}
		return funasr.Load(ctx, cfg.FunASR, r.transcoder, r.log)
	case domain.BackendModelScope:
		if cfg.ModelScope.SidecarURL == "" {
			return backend.NewUnavailable("modelscope", "modelscope sidecar URL is not configured"), nil
		}
		return modelscope.Load(ctx, cfg.ModelScope, r.transcoder)
	case domain.BackendOllama:
		return ollama.Load(ctx, cfg.Ollama)
	case domain.BackendCustomLLM:
		return customllm.Load(cfg.CustomLLM)
	default:
		return nil, faults.Config("unknown backend kind %q", cfg.Kind)
	}
}

// check runs structural validation for the parameter block selected by
// cfg.Kind. Only the active block is validated: a whisper config carrying
// zero-valued funasr params is fine.
func (r *Registry) check(cfg domain.BackendConfig) error {
	var err error
	switch cfg.Kind {
	case domain.BackendWhisper:
		err = r.validate.Struct(cfg.Whisper)
	case domain.BackendFunASR:
		err = r.validate.Struct(cfg.FunASR)
	case domain.BackendModelScope:
		err = r.validate.Struct(cfg.ModelScope)
	case domain.BackendOllama:
		err = r.validate.Struct(cfg.Ollama)
	case domain.BackendCustomLLM:
		err = r.validate.Struct(cfg.CustomLLM)
	default:
		return faults.Config("unknown backend kind %q", cfg.Kind)
	}
	if err != nil {
		return faults.Wrap(faults.KindConfig, err, "invalid %s configuration", cfg.Kind)
	}
	return nil
}
