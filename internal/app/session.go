package app

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/emmett/hark/internal/audio"
	"github.com/emmett/hark/internal/config"
	"github.com/emmett/hark/internal/models"
	"github.com/emmett/hark/internal/stt"
	"github.com/emmett/hark/internal/supervisor"
)

// voskSession owns the engine behind a continuous session
type voskSession struct {
	*stt.ContinuousSession
	engine stt.Engine
}

func (v *voskSession) Close() error {
	err := v.ContinuousSession.Close()
	if cerr := v.engine.Close(); err == nil {
		err = cerr
	}
	return err
}

// VoskSessions returns a factory that loads the model named modelName (the
// default model when empty) and wraps it in a continuous microphone session.
func VoskSessions(cfg *config.Config, mgr *models.Manager, modelName string, log zerolog.Logger) supervisor.SessionFactory {
	return func(ctx context.Context) (supervisor.Session, error) {
		path, model, err := mgr.Resolve(modelName)
		if err != nil {
			return nil, err
		}

		engine := stt.NewVoskEngine()
		if err := engine.Initialize(stt.DefaultConfig(path)); err != nil {
			return nil, fmt.Errorf("failed to initialize STT engine: %w", err)
		}

		capture := audio.ConfigForModelSize(model.Size)
		capture.DeviceID = cfg.Audio.Device

		log.Info().
			Str("model", model.Name).
			Str("language", model.Language).
			Str("device", capture.DeviceID).
			Msg("recognition engine ready")

		session := stt.NewContinuousSession(engine, audio.Factory(capture), stt.SessionConfig{
			Language:        cfg.Recognition.Language,
			ModelLanguage:   model.Language,
			InterimResults:  cfg.Recognition.InterimResults,
			NoSpeechTimeout: config.Seconds(cfg.Recognition.NoSpeechTimeout),
			VAD:             vadConfig(cfg, capture),
		})
		return &voskSession{ContinuousSession: session, engine: engine}, nil
	}
}

func vadConfig(cfg *config.Config, capture audio.CaptureConfig) audio.VADConfig {
	vad := audio.DefaultVADConfig()
	if cfg.VAD.Threshold > 0 {
		vad.EnergyThreshold = cfg.VAD.Threshold
	}
	frame := capture.FrameDuration()
	if delay := config.Seconds(cfg.VAD.SilenceDelay); delay > 0 && frame > 0 {
		vad.SilenceFrames = int(math.Ceil(float64(delay) / float64(frame)))
	}
	return vad
}
