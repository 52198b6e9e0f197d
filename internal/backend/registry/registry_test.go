package registry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"speechflow/internal/backend"
	"speechflow/internal/domain"
	"speechflow/internal/faults"
	"speechflow/internal/media"
)

func testRegistry() *Registry {
	return New(media.NewTranscoder(zerolog.Nop()), zerolog.Nop())
}

func TestBuildRejectsUnknownKind(t *testing.T) {
	_, err := testRegistry().Build(context.Background(), domain.BackendConfig{Kind: "vosk"})
	if !faults.Is(err, faults.KindConfig) {
		t.Fatalf("expected CONFIG_ERROR, got %v", err)
	}
}

func TestBuildRejectsInvalidParams(t *testing.T) {
	cases := []struct {
		name string
		cfg  domain.BackendConfig
	}{
		{"whisper without model path", domain.BackendConfig{Kind: domain.BackendWhisper}},
		{"funasr without model", domain.BackendConfig{
			Kind:   domain.BackendFunASR,
			FunASR: domain.FunASRParams{SidecarURL: "http://127.0.0.1:10095"},
		}},
		{"funasr with malformed sidecar url", domain.BackendConfig{
			Kind:   domain.BackendFunASR,
			FunASR: domain.FunASRParams{Model: "paraformer-zh", SidecarURL: "not a url"},
		}},
		{"custom llm without url", domain.BackendConfig{Kind: domain.BackendCustomLLM}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := testRegistry().Build(context.Background(), tc.cfg)
			if !faults.Is(err, faults.KindConfig) {
				t.Fatalf("expected CONFIG_ERROR, got %v", err)
			}
		})
	}
}

func TestBuildSidecarlessRecognizerIsUnavailable(t *testing.T) {
	cases := []domain.BackendConfig{
		{Kind: domain.BackendFunASR, FunASR: domain.FunASRParams{Model: "paraformer-zh"}},
		{Kind: domain.BackendModelScope},
	}
	for _, cfg := range cases {
		t.Run(string(cfg.Kind), func(t *testing.T) {
			eng, err := testRegistry().Build(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if eng.IsAvailable(context.Background()) {
				t.Fatal("engine should report unavailable")
			}
			rec, ok := eng.(backend.Recognizer)
			if !ok {
				t.Fatal("unavailable engine should still satisfy Recognizer")
			}
			_, terr := rec.Transcribe(context.Background(), "in.wav")
			if !faults.Is(terr, faults.KindUnavailable) {
				t.Fatalf("expected BACKEND_UNAVAILABLE, got %v", terr)
			}
		})
	}
}

func TestLoaderMatchesBuild(t *testing.T) {
	r := testRegistry()
	loader := r.Loader()
	_, err := loader(context.Background(), domain.BackendConfig{Kind: "nope"})
	if !faults.Is(err, faults.KindConfig) {
		t.Fatalf("expected CONFIG_ERROR through loader, got %v", err)
	}
}
